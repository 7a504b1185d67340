// Package chunk implements the binary frame, opportunistic compression,
// and lazy decompression of a backup chunk: the fundamental immutable
// (kind, bytes) unit identified by its OID.
package chunk

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/d3zd3z/cdump/core/kind"
	"github.com/d3zd3z/cdump/core/oid"
	"github.com/d3zd3z/cdump/internal/ioutil"
)

// Magic is the fixed on-disk frame magic, stable since pool format v1.1.
const Magic = "adump-pool-v1.1\n"

// HeaderSize is the size in bytes of a chunk's on-disk header, before the
// payload.
const HeaderSize = 48

// compressThreshold is the minimum uncompressed payload size that zlib
// compression is attempted against; below it, zlib behaves poorly and the
// 16-byte padding would erase any gain anyway.
const compressThreshold = 16

var (
	// ErrNotAChunk is returned by ReadHeader/Read when the stream does not
	// begin with the chunk magic.
	ErrNotAChunk = errors.New("chunk: not a chunk (bad magic)")
	// ErrCompression is returned when zlib fails for a reason other than
	// the destination buffer being too small.
	ErrCompression = errors.New("chunk: compression error")
	// ErrCorrupt is returned when a chunk's declared uncompressed length
	// does not match what decompression actually produces.
	ErrCorrupt = errors.New("chunk: corrupt chunk")
)

type compressState int

const (
	untried compressState = iota
	incompressible
	compressed
)

// Chunk is an immutable (kind, payload) unit identified by its OID. It
// holds one of two payload representations: a chunk built from raw data
// (which lazily attempts compression), or a chunk read back from disk in
// compressed form (which lazily decompresses). The cache populated by
// that laziness is an implementation optimization, not observable state.
type Chunk struct {
	k  kind.Kind
	id oid.OID

	mu sync.Mutex

	// plain holds the uncompressed payload. It is always set for chunks
	// built from raw data, and populated on first Data() call for chunks
	// read from a compressed disk frame.
	plain []byte
	// uncompressedSize is always known, even before a compressed chunk's
	// plain bytes are materialized.
	uncompressedSize int

	// zdata holds the compressed payload, set either because this chunk
	// was read from a compressed disk frame, or because compression was
	// attempted and succeeded.
	zdata []byte
	// state tracks whether compression has been attempted for a
	// plain-constructed chunk. Chunks read from a compressed frame are
	// identified by fromCompressedDisk instead; their state is not set.
	state compressState

	// fromCompressedDisk is true when this chunk was materialized by Read
	// from a frame with uclen != -1: plain is not yet populated.
	fromCompressedDisk bool
}

// FromData constructs a chunk from raw payload bytes, deriving its OID as
// SHA-1(kind || data).
func FromData(k kind.Kind, data []byte) *Chunk {
	if data == nil {
		data = []byte{}
	}
	c := &Chunk{
		k:                k,
		id:               oid.New(k, data),
		plain:            data,
		uncompressedSize: len(data),
	}
	if len(data) < compressThreshold {
		c.state = incompressible
	}
	return c
}

// Kind returns the chunk's kind tag.
func (c *Chunk) Kind() kind.Kind {
	return c.k
}

// OID returns the chunk's content identifier.
func (c *Chunk) OID() oid.OID {
	return c.id
}

// Size returns the uncompressed payload length; it is always known without
// requiring decompression.
func (c *Chunk) Size() int {
	return c.uncompressedSize
}

// Data returns the uncompressed payload, decompressing and verifying its
// length against the declared size on first access if necessary.
func (c *Chunk) Data() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataLocked()
}

func (c *Chunk) dataLocked() ([]byte, error) {
	if c.plain != nil {
		return c.plain, nil
	}
	out, err := zlibDecompress(c.zdata, c.uncompressedSize)
	if err != nil {
		return nil, err
	}
	c.plain = out
	return c.plain, nil
}

// HasZdata reports whether this chunk has (or can produce) a compressed
// form smaller than or equal to its uncompressed payload. The result is
// sticky: once determined, later calls return the cached answer.
func (c *Chunk) HasZdata() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasZdataLocked()
}

func (c *Chunk) hasZdataLocked() (bool, error) {
	if c.fromCompressedDisk {
		return true, nil
	}
	switch c.state {
	case compressed:
		return true, nil
	case incompressible:
		return false, nil
	}

	out, err := zlibTryCompress(c.plain)
	if err != nil {
		if errors.Is(err, ioutil.ErrWouldNotFit) {
			c.state = incompressible
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	c.zdata = out
	c.state = compressed
	return true, nil
}

// ZData returns the compressed payload, if HasZdata is true.
func (c *Chunk) ZData() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok, err := c.hasZdataLocked()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return c.zdata, nil
}

// ZSize returns the length of the compressed payload, if HasZdata is true,
// or -1 if the chunk is incompressible.
func (c *Chunk) ZSize() (int, error) {
	z, err := c.ZData()
	if err != nil {
		return 0, err
	}
	if z == nil {
		return -1, nil
	}
	return len(z), nil
}

// WriteSize returns the number of bytes Write will consume in the
// enclosing file, including the 16-byte padding.
func (c *Chunk) WriteSize() (uint32, error) {
	ok, err := c.HasZdata()
	if err != nil {
		return 0, err
	}
	var payloadLen int
	if ok {
		payloadLen = len(c.zdata)
	} else {
		payloadLen = c.uncompressedSize
	}
	return ioutil.Pad16(uint32(HeaderSize + payloadLen)), nil
}

// Write serializes the chunk's frame to w: header, payload, zero padding
// to a 16-byte boundary.
func (c *Chunk) Write(w io.Writer) error {
	ok, err := c.HasZdata()
	if err != nil {
		return err
	}

	var payload []byte
	uclen := int32(-1)
	if ok {
		payload = c.zdata
		uclen = int32(c.uncompressedSize)
	} else {
		payload, err = c.Data()
		if err != nil {
			return err
		}
	}

	header := make([]byte, HeaderSize)
	copy(header[0:16], Magic)
	ioutil.PutUint32LE(header[16:20], uint32(len(payload)))
	ioutil.PutInt32LE(header[20:24], uclen)
	copy(header[24:28], c.k.Bytes())
	copy(header[28:48], c.id[:])

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}

	total := ioutil.Pad16(uint32(HeaderSize + len(payload)))
	padLen := int(total) - (HeaderSize + len(payload))
	if padLen > 0 {
		if _, err := w.Write(make([]byte, padLen)); err != nil {
			return err
		}
	}
	return nil
}

// HeaderInfo describes a chunk frame without materializing its payload.
type HeaderInfo struct {
	Kind       kind.Kind
	OID        oid.OID
	Size       uint32 // uncompressed payload length
	StoredSize uint32 // padded frame length, including header and padding
}

// ReadHeader reads a chunk's 48-byte header from r and reports whether the
// stream actually begins with a chunk (magic match). The stream position
// is left just after the header; the caller is responsible for skipping or
// reading the payload itself.
func ReadHeader(r io.Reader) (HeaderInfo, bool, error) {
	raw, ok, err := parseHeader(r)
	return raw.info, ok, err
}

// rawHeader is parseHeader's full result: the public HeaderInfo plus the
// on-disk payload length and the compression flag, neither of which
// HeaderInfo exposes but Read needs in order to know how to materialize a
// Chunk from the bytes that follow.
type rawHeader struct {
	info       HeaderInfo
	clen       uint32
	compressed bool
}

// parseHeader reads the header and additionally returns clen (the raw
// on-disk payload length) and whether the frame stores a compressed
// payload (uclen != -1).
func parseHeader(r io.Reader) (rawHeader, bool, error) {
	var raw rawHeader
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return raw, false, err
	}
	if string(header[0:16]) != Magic {
		return raw, false, nil
	}
	clen := ioutil.Uint32LE(header[16:20])
	uclen := ioutil.Int32LE(header[20:24])
	copy(raw.info.Kind[:], header[24:28])
	copy(raw.info.OID[:], header[28:48])
	if uclen == -1 {
		raw.info.Size = clen
	} else {
		raw.info.Size = uint32(uclen)
		raw.compressed = true
	}
	raw.clen = clen
	raw.info.StoredSize = ioutil.Pad16(HeaderSize + clen)
	return raw, true, nil
}

// Read reads a full chunk frame (header, payload, padding skipped) from r.
// A chunk materialized this way trusts the stored OID; it does not
// recompute it from the payload.
func Read(r io.Reader) (*Chunk, error) {
	raw, ok, err := parseHeader(r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAChunk
	}

	payload := make([]byte, raw.clen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	padLen := raw.info.StoredSize - (HeaderSize + raw.clen)
	if padLen > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(padLen)); err != nil {
			return nil, err
		}
	}

	c := &Chunk{k: raw.info.Kind, id: raw.info.OID}
	if !raw.compressed {
		c.plain = payload
		c.uncompressedSize = len(payload)
		if len(payload) < compressThreshold {
			c.state = incompressible
		}
		return c, nil
	}

	c.zdata = payload
	c.uncompressedSize = int(raw.info.Size)
	c.fromCompressedDisk = true
	return c, nil
}

func zlibTryCompress(src []byte) ([]byte, error) {
	if len(src) < compressThreshold {
		return nil, ioutil.ErrWouldNotFit
	}
	bb := ioutil.NewBoundedBuffer(len(src))
	w, err := zlib.NewWriterLevel(bb, 3)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return bb.Bytes(), nil
}

func zlibDecompress(src []byte, wantSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(out) != wantSize {
		return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, len(out), wantSize)
	}
	return out, nil
}
