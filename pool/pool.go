// Package pool implements the append-only, size-capped, multi-file
// content-addressed chunk store: numbered data/index file pairs, a
// write-placement state machine, and a single-writer advisory lock.
package pool

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/d3zd3z/cdump/core/chunk"
	"github.com/d3zd3z/cdump/core/oid"
	"github.com/d3zd3z/cdump/internal/indexfile"
)

var dataFilePattern = regexp.MustCompile(`^pool-data-(\d{4})\.data$`)

// Pool is an open handle on a pool directory: the lock held for its
// lifetime, the parsed properties, and the set of numbered data files,
// ordered newest-first as spec.md's Find iteration requires.
type Pool struct {
	dir      string
	writable bool
	lock     *flock.Flock
	props    Props

	files        []*file
	dirty        bool
	firstNewFile bool
}

// Open acquires the pool's lock, reads its properties, and loads every
// numbered data file's sibling index. Opening fails fast with
// ErrPoolLocked if another process holds the lock.
func Open(dir string, writable bool) (*Pool, error) {
	lk := flock.New(filepath.Join(dir, "lock"))
	ok, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolLocked, err)
	}
	if !ok {
		return nil, ErrPoolLocked
	}

	props, err := readProps(dir)
	if err != nil {
		lk.Unlock()
		return nil, err
	}

	positions, err := scanDataFiles(dir)
	if err != nil {
		lk.Unlock()
		return nil, err
	}

	files := make([]*file, 0, len(positions))
	for _, pos := range positions {
		f, err := openExisting(dir, pos)
		if err != nil {
			for _, opened := range files {
				opened.close()
			}
			lk.Unlock()
			if errors.Is(err, indexfile.ErrIndexStale) {
				return nil, fmt.Errorf("%w: file %04d", ErrIndexStale, pos)
			}
			if errors.Is(err, indexfile.ErrIndexError) {
				return nil, fmt.Errorf("%w: file %04d", ErrIndexError, pos)
			}
			return nil, err
		}
		files = append(files, f)
	}
	// Newest-first: positions were scanned ascending.
	reverseFiles(files)

	return &Pool{
		dir:          dir,
		writable:     writable,
		lock:         lk,
		props:        props,
		files:        files,
		firstNewFile: props.NewFile,
	}, nil
}

func reverseFiles(files []*file) {
	for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
		files[i], files[j] = files[j], files[i]
	}
}

func readProps(dir string) (Props, error) {
	f, err := os.Open(filepath.Join(dir, "metadata", "props.txt"))
	if err != nil {
		return Props{}, fmt.Errorf("%w: %v", ErrPoolOpen, err)
	}
	defer f.Close()
	props, err := DefaultPropsCodec.Read(f)
	if err != nil {
		return Props{}, fmt.Errorf("%w: %v", ErrPoolOpen, err)
	}
	if props.Limit < LimitLowerBound || props.Limit >= LimitUpperBound {
		return Props{}, fmt.Errorf("%w: limit %d out of range", ErrPoolOpen, props.Limit)
	}
	return props, nil
}

func scanDataFiles(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var positions []int
	for _, e := range entries {
		m := dataFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		pos, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions, nil
}

// Create initializes a new, empty pool directory: path must already
// exist and be empty. It writes metadata/props.txt with a fresh UUID
// (from uuidGen, or google/uuid's generator if nil).
func Create(path string, limit uint32, newFile bool, uuidGen func() string) error {
	if limit < LimitLowerBound || limit >= LimitUpperBound {
		return ErrInvalidLimit
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("pool: create: %w", err)
	}
	if len(entries) != 0 {
		return ErrNotEmpty
	}
	if uuidGen == nil {
		uuidGen = func() string { return uuid.New().String() }
	}

	metaDir := filepath.Join(path, "metadata")
	if err := os.Mkdir(metaDir, 0o755); err != nil {
		return err
	}

	propsPath := filepath.Join(metaDir, "props.txt")
	f, err := os.Create(propsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return DefaultPropsCodec.Write(f, Props{
		UUID:    uuidGen(),
		NewFile: newFile,
		Limit:   limit,
	})
}

// Close flushes any pending writes, closes every file handle, and
// releases the pool's lock. Per spec, errors during the implicit flush
// are reported but do not prevent releasing resources.
func (p *Pool) Close() error {
	flushErr := p.Flush()
	for _, f := range p.files {
		f.close()
	}
	if err := p.lock.Unlock(); err != nil && flushErr == nil {
		flushErr = err
	}
	return flushErr
}

// Insert writes chunk to the pool's current head file, rolling to a new
// file first if it would exceed the pool's size limit, per the write
// placement state machine in spec.md §4.5.2.
func (p *Pool) Insert(c *chunk.Chunk) error {
	if !p.writable {
		return ErrReadOnlyPool
	}

	s, err := c.WriteSize()
	if err != nil {
		return err
	}

	if !p.dirty {
		if err := p.openForWrite(s); err != nil {
			return err
		}
		p.dirty = true
		p.firstNewFile = false
	} else if p.headSize()+s > p.props.Limit {
		if err := p.Flush(); err != nil {
			return err
		}
		if err := p.rollNewFile(); err != nil {
			return err
		}
		p.dirty = true
	}

	head := p.files[0]
	if err := head.reopen(modeWrite); err != nil {
		return err
	}
	if _, err := head.seekToEnd(); err != nil {
		return err
	}
	if err := c.Write(head.handle); err != nil {
		return err
	}
	head.index.Insert(c.OID(), head.size, c.Kind())
	head.size += s

	pos, err := head.tell()
	if err != nil {
		return err
	}
	if pos != int64(head.size) {
		return fmt.Errorf("%w: wrote to %d, expected %d", ErrFilePositionMismatch, pos, head.size)
	}
	return nil
}

func (p *Pool) headSize() uint32 {
	if len(p.files) == 0 {
		return 0
	}
	return p.files[0].size
}

func (p *Pool) openForWrite(needed uint32) error {
	if p.firstNewFile || len(p.files) == 0 || p.headSize()+needed > p.props.Limit {
		return p.rollNewFile()
	}
	return p.files[0].reopen(modeWrite)
}

func (p *Pool) nextPos() int {
	max := -1
	for _, f := range p.files {
		if f.pos > max {
			max = f.pos
		}
	}
	return max + 1
}

func (p *Pool) rollNewFile() error {
	f, err := createNew(p.dir, p.nextPos())
	if err != nil {
		return err
	}
	p.files = append([]*file{f}, p.files...)
	return nil
}

// Flush publishes the head file's index to disk, covering both the
// entries staged since the last flush and those already loaded from the
// head's .idx, and re-canonicalizes them into the loaded snapshot, per
// spec.md §4.5.3.
func (p *Pool) Flush() error {
	if !p.dirty {
		return nil
	}
	head := p.files[0]
	if err := head.reopen(modeRead); err != nil {
		return err
	}
	// Save writes only the staging map over the existing .idx, so
	// re-stage the entries already loaded from it first.
	for _, id := range head.index.SortedIterator() {
		e, _ := head.index.Find(id)
		head.index.Insert(id, e.Offset, e.Kind)
	}
	if err := head.index.Save(head.idxPath, head.size); err != nil {
		return err
	}
	if err := head.index.Load(head.idxPath, head.size); err != nil {
		return err
	}
	p.dirty = false
	return nil
}

// Find looks up key across every file, newest-first, returning the chunk
// from the first index that has it. Duplicate OIDs across files resolve
// to the newest occurrence.
func (p *Pool) Find(key oid.OID) (*chunk.Chunk, error) {
	for _, f := range p.files {
		entry, ok := f.index.Find(key)
		if !ok {
			continue
		}
		if f.mode == modeClosed {
			if err := f.reopen(modeRead); err != nil {
				return nil, err
			}
		}
		if _, err := f.handle.Seek(int64(entry.Offset), io.SeekStart); err != nil {
			return nil, err
		}
		return chunk.Read(f.handle)
	}
	return nil, ErrMissingChunk
}

// RecoverIndex rebuilds every .idx file in path by scanning each .data
// file frame by frame, replacing whatever index (stale, corrupt, or
// missing) was there before. It acquires the pool lock itself and fails
// with ErrPoolLocked if the lock is already held, including by an open
// Pool in the same process.
func RecoverIndex(path string) error {
	lk := flock.New(filepath.Join(path, "lock"))
	ok, err := lk.TryLock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPoolLocked, err)
	}
	if !ok {
		return ErrPoolLocked
	}
	defer lk.Unlock()

	positions, err := scanDataFiles(path)
	if err != nil {
		return err
	}

	for _, pos := range positions {
		dataPath, idxPath := fileNames(path, pos)
		if err := recoverOne(dataPath, idxPath); err != nil {
			return fmt.Errorf("pool: recover %s: %w", dataPath, err)
		}
	}
	return nil
}

func recoverOne(dataPath, idxPath string) error {
	f, err := os.Open(dataPath)
	if err != nil {
		return err
	}
	defer f.Close()

	idx := indexfile.New()
	var offset uint32
	for {
		info, ok, err := chunk.ReadHeader(f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if !ok {
			return chunk.ErrNotAChunk
		}
		idx.Insert(info.OID, offset, info.Kind)
		skip := info.StoredSize - chunk.HeaderSize
		if _, err := f.Seek(int64(skip), io.SeekCurrent); err != nil {
			return err
		}
		offset += info.StoredSize
	}

	size, err := fileSize(f)
	if err != nil {
		return err
	}
	return idx.Save(idxPath, size)
}

// Backups returns the top-level backup OIDs recorded in
// metadata/backups.txt, or nil if the file does not exist.
func (p *Pool) Backups() ([]oid.OID, error) {
	data, err := os.ReadFile(filepath.Join(p.dir, "metadata", "backups.txt"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(data))
	ids := make([]oid.OID, 0, len(fields))
	for _, f := range fields {
		id, err := oid.FromHex(f)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AddBackup appends id to metadata/backups.txt.
func (p *Pool) AddBackup(id oid.OID) error {
	f, err := os.OpenFile(filepath.Join(p.dir, "metadata", "backups.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s\n", id.String())
	return err
}

// IsWritable reports whether the pool was opened for writing.
func (p *Pool) IsWritable() bool {
	return p.writable
}

// FileCount returns the number of numbered data files currently in the
// pool.
func (p *Pool) FileCount() int {
	return len(p.files)
}

// TotalSize returns the sum of every data file's size in bytes.
func (p *Pool) TotalSize() uint64 {
	var total uint64
	for _, f := range p.files {
		total += uint64(f.size)
	}
	return total
}

// ChunkCount returns the number of chunks indexed across every data file.
func (p *Pool) ChunkCount() int {
	var total int
	for _, f := range p.files {
		total += f.index.Len()
	}
	return total
}
