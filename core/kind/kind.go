// Package kind implements the 4-byte chunk type tag used to identify
// the shape of a chunk's payload (e.g. "blob", "back", "dir ").
package kind

import (
	"errors"
)

// ErrInvalidKind is returned when a Kind cannot be constructed from the
// given input.
var ErrInvalidKind = errors.New("kind: invalid kind")

// Size is the number of bytes a Kind occupies, both in memory and on disk.
const Size = 4

// Kind is a 4-byte type tag holding four printable characters. It is
// persisted as the raw four bytes in host order, and treated in APIs both
// as a short string and as a 32-bit value.
type Kind [Size]byte

// New constructs a Kind from a 4-byte string. It fails with ErrInvalidKind
// if the string is not exactly 4 bytes long.
func New(s string) (Kind, error) {
	var k Kind
	if len(s) != Size {
		return k, ErrInvalidKind
	}
	copy(k[:], s)
	return k, nil
}

// MustNew is like New but panics on error. It exists for constructing
// well-known kind constants at package init time.
func MustNew(s string) Kind {
	k, err := New(s)
	if err != nil {
		panic(err)
	}
	return k
}

// FromUint32 constructs a Kind from a raw 32-bit value in host order.
func FromUint32(v uint32) Kind {
	var k Kind
	k[0] = byte(v)
	k[1] = byte(v >> 8)
	k[2] = byte(v >> 16)
	k[3] = byte(v >> 24)
	return k
}

// Uint32 returns the Kind's bytes reinterpreted as a host-order 32-bit
// value.
func (k Kind) Uint32() uint32 {
	return uint32(k[0]) | uint32(k[1])<<8 | uint32(k[2])<<16 | uint32(k[3])<<24
}

// String renders the Kind as its 4-character textual form.
func (k Kind) String() string {
	return string(k[:])
}

// Bytes returns the raw 4 bytes of the Kind.
func (k Kind) Bytes() []byte {
	return k[:]
}

// Equal reports whether two Kinds are byte-identical.
func (k Kind) Equal(other Kind) bool {
	return k == other
}

// Compare orders two Kinds byte-lexicographically, returning -1, 0, or 1.
func (k Kind) Compare(other Kind) int {
	for i := 0; i < Size; i++ {
		if k[i] != other[i] {
			if k[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether k sorts before other.
func (k Kind) Less(other Kind) bool {
	return k.Compare(other) < 0
}
