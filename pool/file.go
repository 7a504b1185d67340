package pool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/d3zd3z/cdump/internal/indexfile"
)

// fileMode tracks which of the two mutually exclusive handle states a
// pool data file is in. Per the design notes, a file never holds both a
// reader and a writer handle at once; reopen(mode) closes whatever is
// open and opens the requested mode fresh.
type fileMode int

const (
	modeClosed fileMode = iota
	modeRead
	modeWrite
)

// file is one numbered data/index pair within a pool. pos is the 4-digit
// file number; size is the current byte length of the data file, kept in
// sync with the on-disk file by the insert state machine.
type file struct {
	pos      int
	dataPath string
	idxPath  string

	handle *os.File
	mode   fileMode

	index *indexfile.FileIndex
	size  uint32
}

func fileNames(dir string, pos int) (dataPath, idxPath string) {
	name := fmt.Sprintf("pool-data-%04d", pos)
	return filepath.Join(dir, name+".data"), filepath.Join(dir, name+".idx")
}

// openExisting opens a data file that already exists on disk (read-only)
// and loads its sibling index, verifying it against the data file's
// current size.
func openExisting(dir string, pos int) (*file, error) {
	dataPath, idxPath := fileNames(dir, pos)
	h, err := os.Open(dataPath)
	if err != nil {
		return nil, err
	}
	size, err := fileSize(h)
	if err != nil {
		h.Close()
		return nil, err
	}
	idx := indexfile.New()
	if err := idx.Load(idxPath, size); err != nil {
		h.Close()
		return nil, err
	}
	return &file{
		pos:      pos,
		dataPath: dataPath,
		idxPath:  idxPath,
		handle:   h,
		mode:     modeRead,
		index:    idx,
		size:     size,
	}, nil
}

// createNew creates a brand new, empty data file ready for writing.
func createNew(dir string, pos int) (*file, error) {
	dataPath, idxPath := fileNames(dir, pos)
	h, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return &file{
		pos:      pos,
		dataPath: dataPath,
		idxPath:  idxPath,
		handle:   h,
		mode:     modeWrite,
		index:    indexfile.New(),
		size:     0,
	}, nil
}

func fileSize(h *os.File) (uint32, error) {
	info, err := h.Stat()
	if err != nil {
		return 0, err
	}
	return uint32(info.Size()), nil
}

// reopen switches f's handle to the requested mode, closing the previous
// handle first. It is a no-op if f is already in that mode.
func (f *file) reopen(mode fileMode) error {
	if f.mode == mode {
		return nil
	}
	if f.handle != nil {
		if err := f.handle.Close(); err != nil {
			return err
		}
		f.handle = nil
		f.mode = modeClosed
	}
	var h *os.File
	var err error
	switch mode {
	case modeRead:
		h, err = os.Open(f.dataPath)
	case modeWrite:
		h, err = os.OpenFile(f.dataPath, os.O_RDWR, 0o644)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	f.handle = h
	f.mode = mode
	return nil
}

func (f *file) close() error {
	if f.handle == nil {
		return nil
	}
	err := f.handle.Close()
	f.handle = nil
	f.mode = modeClosed
	return err
}

// seekToEnd seeks the handle to f.size, the tracked end of the data
// file, and reports the position actually landed on.
func (f *file) seekToEnd() (int64, error) {
	return f.handle.Seek(int64(f.size), io.SeekStart)
}

func (f *file) tell() (int64, error) {
	return f.handle.Seek(0, io.SeekCurrent)
}
