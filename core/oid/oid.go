// Package oid implements the 20-byte content-addressed object identifier:
// the SHA-1 of a chunk's kind bytes concatenated with its payload bytes.
package oid

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"

	"github.com/d3zd3z/cdump/core/kind"
)

// ErrInvalidOID is returned when an OID cannot be parsed from hex text.
var ErrInvalidOID = errors.New("oid: invalid object id")

// Size is the number of bytes an OID occupies.
const Size = 20

// HexSize is the length of an OID's lowercase hex text form.
const HexSize = Size * 2

// OID is an opaque 20-byte content identifier: SHA-1(kind.Bytes() ||
// payload). The zero value is the all-zero sentinel, which is never a
// real content hash with overwhelming probability.
type OID [Size]byte

// New computes the OID of the given kind and payload.
func New(k kind.Kind, data []byte) OID {
	h := sha1.New()
	h.Write(k.Bytes())
	h.Write(data)
	var id OID
	copy(id[:], h.Sum(nil))
	return id
}

// FromHex parses a 40-character lowercase hex string into an OID. It fails
// with ErrInvalidOID on wrong length or a non-hex character.
func FromHex(s string) (OID, error) {
	var id OID
	if len(s) != HexSize {
		return id, ErrInvalidOID
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, ErrInvalidOID
	}
	copy(id[:], b)
	return id, nil
}

// String renders the OID as 40 lowercase hex characters.
func (id OID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether this is the all-zero sentinel OID.
func (id OID) IsZero() bool {
	return id == OID{}
}

// PeekFirst returns the first byte of the OID, used by the index to bucket
// entries for binary search.
func (id OID) PeekFirst() byte {
	return id[0]
}

// Compare orders two OIDs byte-lexicographically, returning -1, 0, or 1.
func (id OID) Compare(other OID) int {
	for i := 0; i < Size; i++ {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether id sorts before other.
func (id OID) Less(other OID) bool {
	return id.Compare(other) < 0
}

// Inc adjusts the OID by +1, treating the 20 bytes as a big-endian integer
// with wrap-around. It is used only to synthesize adjacent neighbors for
// negative-lookup tests.
func (id *OID) Inc() {
	for i := Size - 1; i >= 0; i-- {
		id[i]++
		if id[i] != 0 {
			return
		}
	}
}

// Dec adjusts the OID by -1, treating the 20 bytes as a big-endian integer
// with wrap-around.
func (id *OID) Dec() {
	for i := Size - 1; i >= 0; i-- {
		id[i]--
		if id[i] != 0xff {
			return
		}
	}
}
