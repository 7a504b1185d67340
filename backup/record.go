// Package backup implements the traversal layer: a registry of
// kind-dispatched handlers, a visitor carrying an OID stack, and prunable
// recursive descent over a tree of "back" chunks.
package backup

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncatedRecord is returned by DecodeRecord when the byte stream
// ends in the middle of a length-prefixed field.
var ErrTruncatedRecord = errors.New("backup: truncated property record")

// Entry is one key/value pair of a decoded property record, in the order
// it appeared on the wire.
type Entry struct {
	Key   string
	Value string
}

// Record is the decoded form of a "back" chunk's payload: a type string
// followed by an ordered sequence of key/value pairs.
type Record struct {
	Type    string
	Entries []Entry
}

// DecodeRecord parses the property-record wire format: a u8-length-
// prefixed type string, followed by repeated (u8-length-prefixed key,
// u16-big-endian-length-prefixed value) pairs until the input is
// exhausted.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	pos := 0

	typ, next, err := readU8String(data, pos)
	if err != nil {
		return rec, err
	}
	rec.Type = typ
	pos = next

	for pos < len(data) {
		key, next, err := readU8String(data, pos)
		if err != nil {
			return rec, err
		}
		pos = next

		value, next, err := readU16String(data, pos)
		if err != nil {
			return rec, err
		}
		pos = next

		rec.Entries = append(rec.Entries, Entry{Key: key, Value: value})
	}
	return rec, nil
}

func readU8String(data []byte, pos int) (string, int, error) {
	if pos >= len(data) {
		return "", 0, fmt.Errorf("%w: missing length byte", ErrTruncatedRecord)
	}
	n := int(data[pos])
	pos++
	if pos+n > len(data) {
		return "", 0, fmt.Errorf("%w: string of length %d exceeds remaining bytes", ErrTruncatedRecord, n)
	}
	return string(data[pos : pos+n]), pos + n, nil
}

func readU16String(data []byte, pos int) (string, int, error) {
	if pos+2 > len(data) {
		return "", 0, fmt.Errorf("%w: missing length bytes", ErrTruncatedRecord)
	}
	n := int(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2
	if pos+n > len(data) {
		return "", 0, fmt.Errorf("%w: string of length %d exceeds remaining bytes", ErrTruncatedRecord, n)
	}
	return string(data[pos : pos+n]), pos + n, nil
}

// EncodeRecord serializes rec back to the property-record wire format.
func EncodeRecord(rec Record) ([]byte, error) {
	if len(rec.Type) > 0xff {
		return nil, fmt.Errorf("backup: type string %q too long to encode", rec.Type)
	}
	buf := make([]byte, 0, 1+len(rec.Type)+len(rec.Entries)*8)
	buf = append(buf, byte(len(rec.Type)))
	buf = append(buf, rec.Type...)

	for _, e := range rec.Entries {
		if len(e.Key) > 0xff {
			return nil, fmt.Errorf("backup: key %q too long to encode", e.Key)
		}
		if len(e.Value) > 0xffff {
			return nil, fmt.Errorf("backup: value for key %q too long to encode", e.Key)
		}
		buf = append(buf, byte(len(e.Key)))
		buf = append(buf, e.Key...)

		var vlen [2]byte
		binary.BigEndian.PutUint16(vlen[:], uint16(len(e.Value)))
		buf = append(buf, vlen[:]...)
		buf = append(buf, e.Value...)
	}
	return buf, nil
}
