// Package indexfile implements the on-disk sorted index that lets a pool
// data file answer OID lookups in O(log N) instead of a linear scan: a
// 256-bucket "tops" table over sorted OIDs, paired offset and kind arrays,
// and an in-memory staging map consulted before the loaded snapshot.
package indexfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/d3zd3z/cdump/core/kind"
	"github.com/d3zd3z/cdump/core/oid"
	"github.com/d3zd3z/cdump/internal/ioutil"
)

// Magic is the fixed 8-byte on-disk index magic.
const Magic = "ldumpidx"

// Version is the only on-disk index format version this package produces
// or accepts.
const Version = 4

const (
	numBuckets  = 256
	topsSize    = numBuckets * 4
	headerFixed = 8 + 4 + 4 // magic + version + file_size
)

var (
	// ErrIndexError is returned by Load when the file's magic or version
	// does not match what this package writes.
	ErrIndexError = errors.New("indexfile: wrong magic or version")
	// ErrIndexStale is returned by Load when the recorded file_size does
	// not match the data file's actual size: the index predates changes
	// to the data file and must be discarded or rebuilt.
	ErrIndexStale = errors.New("indexfile: stale (file_size mismatch)")
)

// Entry is the (offset, kind) pair an index maps an OID to. Offset is the
// byte position of the chunk's header within its data file.
type Entry struct {
	Offset uint32
	Kind   kind.Kind
}

// snapshot is the immutable result of a successful Load: the sorted arrays
// backing bucketed binary search, plus the tops table itself.
type snapshot struct {
	fileSize  uint32
	tops      [numBuckets]uint32
	hashes    []oid.OID
	offsets   []uint32
	kindMap   []kind.Kind
	kindIndex []byte
}

func (s *snapshot) find(id oid.OID) (Entry, bool) {
	if s == nil || len(s.hashes) == 0 {
		return Entry{}, false
	}
	first := id.PeekFirst()
	var low uint32
	if first > 0 {
		low = s.tops[first-1]
	}
	high := int64(s.tops[first]) - 1
	for high >= int64(low) {
		mid := int64(low) + (high-int64(low))/2
		c := id.Compare(s.hashes[mid])
		switch {
		case c < 0:
			high = mid - 1
		case c > 0:
			low = uint32(mid) + 1
		default:
			return Entry{
				Offset: s.offsets[mid],
				Kind:   s.kindMap[s.kindIndex[mid]],
			}, true
		}
	}
	return Entry{}, false
}

// FileIndex is the index for a single pool data file: a mutable staging
// map of entries inserted since the last Save, and the immutable snapshot
// loaded from (or most recently published to) disk.
type FileIndex struct {
	ram      map[oid.OID]Entry
	snapshot *snapshot
}

// New returns an empty FileIndex with no staged or loaded entries.
func New() *FileIndex {
	return &FileIndex{ram: make(map[oid.OID]Entry)}
}

// Insert stages an OID -> (offset, kind) mapping in memory. It is not
// durable until Save is called.
func (fi *FileIndex) Insert(id oid.OID, offset uint32, k kind.Kind) {
	fi.ram[id] = Entry{Offset: offset, Kind: k}
}

// Find consults the staging map first, then the loaded snapshot.
func (fi *FileIndex) Find(id oid.OID) (Entry, bool) {
	if e, ok := fi.ram[id]; ok {
		return e, true
	}
	return fi.snapshot.find(id)
}

// Len returns the number of entries visible across both layers.
func (fi *FileIndex) Len() int {
	seen := make(map[oid.OID]struct{}, len(fi.ram))
	for id := range fi.ram {
		seen[id] = struct{}{}
	}
	if fi.snapshot != nil {
		for _, id := range fi.snapshot.hashes {
			if _, ok := fi.ram[id]; !ok {
				seen[id] = struct{}{}
			}
		}
	}
	return len(seen)
}

// SortedIterator returns every OID visible across the staging map and the
// loaded snapshot, in ascending order. Save does not use it; it serves
// callers that need to walk an index in full (pool flushing re-stages
// loaded entries through it). Ordinary lookups should use Find.
func (fi *FileIndex) SortedIterator() []oid.OID {
	seen := make(map[oid.OID]struct{})
	out := make([]oid.OID, 0, len(fi.ram))
	for id := range fi.ram {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	if fi.snapshot != nil {
		for _, id := range fi.snapshot.hashes {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Save writes the staging map (only; the loaded snapshot is already
// durable) to path as a sorted on-disk index describing a data file of
// fileSize bytes. The write is atomic: it builds "<path>.tmp" then renames
// it over path.
//
// Per the baseline design, Save serializes only entries currently in the
// staging map. Callers that want a save reflecting the full merged view
// (staging + previously loaded) should Insert those entries again, or
// build the file from SortedIterator directly.
func (fi *FileIndex) Save(path string, fileSize uint32) error {
	ids := make([]oid.OID, 0, len(fi.ram))
	for id := range fi.ram {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	var tops [numBuckets]uint32
	{
		count := uint32(0)
		idx := 0
		for b := 0; b < numBuckets; b++ {
			for idx < len(ids) && int(ids[idx].PeekFirst()) == b {
				idx++
				count++
			}
			tops[b] = count
		}
	}

	kindMap, kindOrdinal := buildKindMap(ids, fi.ram)
	kindIndex := make([]byte, len(ids))
	for i, id := range ids {
		kindIndex[i] = kindOrdinal[fi.ram[id].Kind]
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("indexfile: create %s: %w", tmpPath, err)
	}
	w := bufio.NewWriter(f)

	var hdr [headerFixed]byte
	copy(hdr[0:8], Magic)
	ioutil.PutUint32LE(hdr[8:12], Version)
	ioutil.PutUint32LE(hdr[12:16], fileSize)
	if _, err := w.Write(hdr[:]); err != nil {
		f.Close()
		return err
	}

	var topsBuf [topsSize]byte
	for b := 0; b < numBuckets; b++ {
		ioutil.PutUint32LE(topsBuf[b*4:b*4+4], tops[b])
	}
	if _, err := w.Write(topsBuf[:]); err != nil {
		f.Close()
		return err
	}

	for _, id := range ids {
		if _, err := w.Write(id[:]); err != nil {
			f.Close()
			return err
		}
	}

	var off [4]byte
	for _, id := range ids {
		ioutil.PutUint32LE(off[:], fi.ram[id].Offset)
		if _, err := w.Write(off[:]); err != nil {
			f.Close()
			return err
		}
	}

	var kc [4]byte
	ioutil.PutUint32LE(kc[:], uint32(len(kindMap)))
	if _, err := w.Write(kc[:]); err != nil {
		f.Close()
		return err
	}
	for _, k := range kindMap {
		if _, err := w.Write(k.Bytes()); err != nil {
			f.Close()
			return err
		}
	}
	if _, err := w.Write(kindIndex); err != nil {
		f.Close()
		return err
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("indexfile: rename %s: %w", tmpPath, err)
	}
	return nil
}

// buildKindMap assigns each distinct kind found in ram (restricted to ids)
// a stable ordinal in ascending kind-value order, per §4.4.2 step 5.
func buildKindMap(ids []oid.OID, ram map[oid.OID]Entry) ([]kind.Kind, map[kind.Kind]byte) {
	seen := make(map[kind.Kind]bool)
	var distinct []kind.Kind
	for _, id := range ids {
		k := ram[id].Kind
		if !seen[k] {
			seen[k] = true
			distinct = append(distinct, k)
		}
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i].Less(distinct[j]) })
	ordinal := make(map[kind.Kind]byte, len(distinct))
	for i, k := range distinct {
		ordinal[k] = byte(i)
	}
	return distinct, ordinal
}

// Load reads an on-disk index from path, replacing this FileIndex's
// loaded snapshot and emptying the staging map. fileSize is the
// actual current size of the sibling data file; a mismatch against the
// recorded value is ErrIndexStale.
func (fi *FileIndex) Load(path string, fileSize uint32) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) < headerFixed+topsSize {
		return ErrIndexError
	}
	if string(data[0:8]) != Magic {
		return ErrIndexError
	}
	version := ioutil.Uint32LE(data[8:12])
	if version != Version {
		return ErrIndexError
	}
	recordedSize := ioutil.Uint32LE(data[12:16])
	if recordedSize != fileSize {
		return ErrIndexStale
	}

	snap := &snapshot{fileSize: recordedSize}
	pos := headerFixed
	for b := 0; b < numBuckets; b++ {
		snap.tops[b] = ioutil.Uint32LE(data[pos : pos+4])
		pos += 4
	}

	n := int(snap.tops[numBuckets-1])
	needHashes := n * oid.Size
	if pos+needHashes > len(data) {
		return fmt.Errorf("%w: truncated hash array", ErrIndexError)
	}
	snap.hashes = make([]oid.OID, n)
	for i := 0; i < n; i++ {
		copy(snap.hashes[i][:], data[pos:pos+oid.Size])
		pos += oid.Size
	}

	needOffsets := n * 4
	if pos+needOffsets > len(data) {
		return fmt.Errorf("%w: truncated offset array", ErrIndexError)
	}
	snap.offsets = make([]uint32, n)
	for i := 0; i < n; i++ {
		snap.offsets[i] = ioutil.Uint32LE(data[pos : pos+4])
		pos += 4
	}

	if pos+4 > len(data) {
		return fmt.Errorf("%w: truncated kind count", ErrIndexError)
	}
	kindCount := int(ioutil.Uint32LE(data[pos : pos+4]))
	pos += 4

	needKindMap := kindCount * kind.Size
	if pos+needKindMap > len(data) {
		return fmt.Errorf("%w: truncated kind map", ErrIndexError)
	}
	snap.kindMap = make([]kind.Kind, kindCount)
	for i := 0; i < kindCount; i++ {
		copy(snap.kindMap[i][:], data[pos:pos+kind.Size])
		pos += kind.Size
	}

	if pos+n > len(data) {
		return fmt.Errorf("%w: truncated kind index", ErrIndexError)
	}
	snap.kindIndex = make([]byte, n)
	copy(snap.kindIndex, data[pos:pos+n])

	fi.snapshot = snap
	fi.ram = make(map[oid.OID]Entry)
	return nil
}
