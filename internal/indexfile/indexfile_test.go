package indexfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/d3zd3z/cdump/core/kind"
	"github.com/d3zd3z/cdump/core/oid"
)

func mustOID(t *testing.T, hex string) oid.OID {
	t.Helper()
	id, err := oid.FromHex(hex)
	if err != nil {
		t.Fatalf("FromHex(%q): %v", hex, err)
	}
	return id
}

func TestInsertFind(t *testing.T) {
	fi := New()
	blob := kind.MustNew("blob")
	id := oid.New(blob, []byte("hello"))

	if _, ok := fi.Find(id); ok {
		t.Fatalf("expected absent before insert")
	}

	fi.Insert(id, 123, blob)
	e, ok := fi.Find(id)
	if !ok {
		t.Fatalf("expected found after insert")
	}
	if e.Offset != 123 || e.Kind != blob {
		t.Fatalf("unexpected entry: %+v", e)
	}

	neighbor := id
	neighbor.Inc()
	if _, ok := fi.Find(neighbor); ok {
		t.Fatalf("expected neighbor absent")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fi := New()
	blob := kind.MustNew("blob")
	back := kind.MustNew("back")

	ids := make([]oid.OID, 0, 300)
	for i := 0; i < 300; i++ {
		id := oid.New(blob, []byte{byte(i), byte(i >> 8), byte(i >> 16)})
		k := blob
		if i%7 == 0 {
			k = back
		}
		fi.Insert(id, uint32(i*64), k)
		ids = append(ids, id)
	}

	idxPath := filepath.Join(dir, "pool-data-0000.idx")
	const fileSize = 300 * 64
	if err := fi.Save(idxPath, fileSize); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New()
	if err := loaded.Load(idxPath, fileSize); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for i, id := range ids {
		e, ok := loaded.Find(id)
		if !ok {
			t.Fatalf("entry %d not found after load", i)
		}
		if e.Offset != uint32(i*64) {
			t.Fatalf("entry %d: offset = %d, want %d", i, e.Offset, i*64)
		}
	}
}

func TestLoadRejectsStaleSize(t *testing.T) {
	dir := t.TempDir()
	fi := New()
	blob := kind.MustNew("blob")
	fi.Insert(oid.New(blob, []byte("x")), 0, blob)

	idxPath := filepath.Join(dir, "idx")
	if err := fi.Save(idxPath, 64); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New()
	if err := loaded.Load(idxPath, 128); err != ErrIndexStale {
		t.Fatalf("expected ErrIndexStale, got %v", err)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")
	if err := os.WriteFile(path, []byte("not-an-index-file-at-all-but-long-enough-bytes"), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
	loaded := New()
	if err := loaded.Load(path, 0); err != ErrIndexError {
		t.Fatalf("expected ErrIndexError, got %v", err)
	}
}

func TestBoundaryFirstByte(t *testing.T) {
	dir := t.TempDir()
	fi := New()
	blob := kind.MustNew("blob")

	// One OID for every 17th first byte (0x00, 0x11, ..., 0xff), to
	// exercise the tops-table boundary between buckets.
	var ids []oid.OID
	for b := 0; b < 256; b += 17 {
		hexStr := byteHex(byte(b)) + strings.Repeat("0", 38)
		id := mustOID(t, hexStr)
		fi.Insert(id, uint32(b), blob)
		ids = append(ids, id)
	}

	idxPath := filepath.Join(dir, "idx")
	if err := fi.Save(idxPath, 4096); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded := New()
	if err := loaded.Load(idxPath, 4096); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, id := range ids {
		if _, ok := loaded.Find(id); !ok {
			t.Fatalf("OID %s not found across first-byte bucket boundary", id)
		}
	}
}

func byteHex(b byte) string {
	const hexDigits = "0123456789abcdef"
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xf]})
}

func TestLen(t *testing.T) {
	dir := t.TempDir()
	fi := New()
	blob := kind.MustNew("blob")

	ids := make([]oid.OID, 0, 10)
	for i := 0; i < 10; i++ {
		id := oid.New(blob, []byte{byte(i)})
		fi.Insert(id, uint32(i*64), blob)
		ids = append(ids, id)
	}
	if n := fi.Len(); n != 10 {
		t.Fatalf("Len() = %d, want 10 before save", n)
	}

	idxPath := filepath.Join(dir, "idx")
	if err := fi.Save(idxPath, 640); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := fi.Load(idxPath, 640); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := fi.Len(); n != 10 {
		t.Fatalf("Len() = %d, want 10 after load", n)
	}

	// Insert a further entry into the staging map on top of the loaded
	// snapshot; Len must count both layers without double-counting.
	fi.Insert(oid.New(blob, []byte("eleventh")), 999, blob)
	if n := fi.Len(); n != 11 {
		t.Fatalf("Len() = %d, want 11 after re-insert on top of snapshot", n)
	}
}

func TestSortedIteratorOrder(t *testing.T) {
	fi := New()
	blob := kind.MustNew("blob")
	a := mustOID(t, "000000000000000000000000000000000000000a")
	b := mustOID(t, "000000000000000000000000000000000000000b")
	c := mustOID(t, "000000000000000000000000000000000000000c")
	fi.Insert(c, 2, blob)
	fi.Insert(a, 0, blob)
	fi.Insert(b, 1, blob)

	got := fi.SortedIterator()
	if len(got) != 3 || got[0] != a || got[1] != b || got[2] != c {
		t.Fatalf("unexpected order: %v", got)
	}
}
