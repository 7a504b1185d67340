package chunk

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/d3zd3z/cdump/core/kind"
)

func blobKind(t *testing.T) kind.Kind {
	t.Helper()
	return kind.MustNew("blob")
}

func TestCompressionGolden(t *testing.T) {
	k := blobKind(t)
	long := "Hello world.  Let's try a much longer string to see if that helps.  Let's try a much longer string to see if that helps."
	c := FromData(k, []byte(long))
	ok, err := c.HasZdata()
	if err != nil {
		t.Fatalf("HasZdata: %v", err)
	}
	if !ok {
		t.Fatalf("expected long repetitive string to be compressible")
	}
	zsize, err := c.ZSize()
	if err != nil {
		t.Fatalf("ZSize: %v", err)
	}
	if zsize >= len(long) {
		t.Fatalf("compressed size %d not smaller than input %d", zsize, len(long))
	}

	zdata, err := c.ZData()
	if err != nil {
		t.Fatalf("ZData: %v", err)
	}
	got, err := zlibDecompress(zdata, len(long))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(got) != long {
		t.Fatalf("decompressed mismatch")
	}
}

func TestShortDataIncompressible(t *testing.T) {
	c := FromData(blobKind(t), []byte("Short"))
	ok, err := c.HasZdata()
	if err != nil {
		t.Fatalf("HasZdata: %v", err)
	}
	if ok {
		t.Fatalf("expected short data to be incompressible")
	}
	zsize, err := c.ZSize()
	if err != nil {
		t.Fatalf("ZSize: %v", err)
	}
	if zsize != -1 {
		t.Fatalf("ZSize() = %d, want -1", zsize)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	sizes := []int{}
	for k := 0; k <= 19; k++ {
		base := 1 << uint(k)
		for _, delta := range []int{-1, 0, 1} {
			sz := base + delta
			if sz >= 0 {
				sizes = append(sizes, sz)
			}
		}
	}

	for _, sz := range sizes {
		data := make([]byte, sz)
		for i := range data {
			data[i] = byte(i * 7 % 251)
		}
		c := FromData(blobKind(t), data)

		var buf bytes.Buffer
		if err := c.Write(&buf); err != nil {
			t.Fatalf("size %d: Write: %v", sz, err)
		}

		if buf.Len()%16 != 0 {
			t.Fatalf("size %d: frame length %d not 16-byte aligned", sz, buf.Len())
		}

		c2, err := Read(&buf)
		if err != nil {
			t.Fatalf("size %d: Read: %v", sz, err)
		}
		if c2.OID() != c.OID() {
			t.Fatalf("size %d: OID mismatch", sz)
		}
		if c2.Kind() != c.Kind() {
			t.Fatalf("size %d: Kind mismatch", sz)
		}
		got, err := c2.Data()
		if err != nil {
			t.Fatalf("size %d: Data: %v", sz, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("size %d: data mismatch", sz)
		}
	}
}

func TestWriteSizeMatchesActualWrite(t *testing.T) {
	c := FromData(blobKind(t), bytes.Repeat([]byte("abcdefgh"), 100))
	sz, err := c.WriteSize()
	if err != nil {
		t.Fatalf("WriteSize: %v", err)
	}
	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if uint32(buf.Len()) != sz {
		t.Fatalf("WriteSize() = %d, actual write = %d", sz, buf.Len())
	}
}

func TestReadHeaderPeek(t *testing.T) {
	c := FromData(blobKind(t), bytes.Repeat([]byte("z"), 200))
	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, ok, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if !ok {
		t.Fatalf("expected magic match")
	}
	if info.OID != c.OID() {
		t.Fatalf("OID mismatch")
	}
	if int(info.Size) != c.Size() {
		t.Fatalf("Size mismatch: %d != %d", info.Size, c.Size())
	}
	if info.StoredSize != uint32(buf.Len()) {
		t.Fatalf("StoredSize mismatch: %d != %d", info.StoredSize, buf.Len())
	}

	// ReadHeader on the same bytes a second time must yield a
	// byte-for-byte identical HeaderInfo.
	info2, ok2, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	if err != nil || !ok2 {
		t.Fatalf("second ReadHeader: ok=%v err=%v", ok2, err)
	}
	if diff := cmp.Diff(info, info2); diff != "" {
		t.Fatalf("HeaderInfo mismatch (-want +got):\n%s", diff)
	}
}

func TestReadNotAChunk(t *testing.T) {
	garbage := bytes.Repeat([]byte{0x42}, 64)
	if _, err := Read(bytes.NewReader(garbage)); err != ErrNotAChunk {
		t.Fatalf("expected ErrNotAChunk, got %v", err)
	}
}

func TestCorruptChunkLengthMismatch(t *testing.T) {
	c := FromData(blobKind(t), bytes.Repeat([]byte("compress me please "), 20))
	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw := buf.Bytes()
	// Corrupt the declared uncompressed length field (offset 20..24) so
	// decompression produces the wrong number of bytes.
	raw[20]++

	c2, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := c2.Data(); err == nil {
		t.Fatalf("expected corrupt-length error")
	}
}
