package ioutil

import "testing"

func TestPad16(t *testing.T) {
	tests := []struct {
		in   uint32
		want uint32
	}{
		{0, 0},
		{1, 16},
		{15, 16},
		{16, 16},
		{17, 32},
		{48, 48},
	}
	for _, tt := range tests {
		if got := Pad16(tt.in); got != tt.want {
			t.Fatalf("Pad16(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestUint32LERoundTrip(t *testing.T) {
	b := make([]byte, 4)
	PutUint32LE(b, 0xdeadbeef)
	if got := Uint32LE(b); got != 0xdeadbeef {
		t.Fatalf("got %x, want deadbeef", got)
	}
}

func TestInt32LERoundTrip(t *testing.T) {
	b := make([]byte, 4)
	PutInt32LE(b, -1)
	if got := Int32LE(b); got != -1 {
		t.Fatalf("got %d, want -1", got)
	}
}

func TestBoundedBuffer(t *testing.T) {
	bb := NewBoundedBuffer(4)
	if _, err := bb.Write([]byte("ab")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := bb.Write([]byte("cd")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(bb.Bytes()); got != "abcd" {
		t.Fatalf("got %q, want abcd", got)
	}
	if _, err := bb.Write([]byte("e")); err != ErrWouldNotFit {
		t.Fatalf("expected ErrWouldNotFit, got %v", err)
	}
}
