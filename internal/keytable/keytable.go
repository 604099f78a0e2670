// Package keytable loads the DES key table used to decrypt S_PDU payloads.
// The table is read once at startup and is read-only for the remainder of
// the process, per the "key table is read-only after init" ownership rule.
package keytable

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// KeySize is the size of a single DES key in bytes.
const KeySize = 8

// Table maps a 16-bit key index to its 8-byte DES key. The zero value is
// an empty table, which disables decryption entirely: the S_PDU stage
// passes every file through untouched when the table is empty.
type Table struct {
	keys map[uint16][KeySize]byte
}

// New returns an empty key table (decryption disabled).
func New() *Table {
	return &Table{keys: make(map[uint16][KeySize]byte)}
}

// Get returns the DES key for index, and whether it was found.
func (t *Table) Get(index uint16) ([KeySize]byte, bool) {
	if t == nil || len(t.keys) == 0 {
		return [KeySize]byte{}, false
	}
	k, ok := t.keys[index]
	return k, ok
}

// Empty reports whether the table holds no keys, which disables
// decryption: encrypted files then pass through unmodified.
func (t *Table) Empty() bool {
	return t == nil || len(t.keys) == 0
}

// Load parses a key file in the wire format:
//
//	[u16 big-endian key_count][(u16 big-endian index, 8-byte key) x key_count]
//
// A missing key file disables decryption (Load returns an empty table and
// a nil error); only a malformed existing file is a parse error.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("keytable: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses the key table wire format from r.
func Decode(r io.Reader) (*Table, error) {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		if err == io.EOF {
			return New(), nil
		}
		return nil, fmt.Errorf("keytable: read key count: %w", err)
	}

	t := New()
	for i := uint16(0); i < count; i++ {
		var index uint16
		if err := binary.Read(r, binary.BigEndian, &index); err != nil {
			return nil, fmt.Errorf("keytable: read index %d: %w", i, err)
		}
		var key [KeySize]byte
		if _, err := io.ReadFull(r, key[:]); err != nil {
			return nil, fmt.Errorf("keytable: read key %d: %w", i, err)
		}
		t.keys[index] = key
	}
	return t, nil
}

// Len returns the number of keys in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}
