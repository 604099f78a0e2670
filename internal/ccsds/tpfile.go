package ccsds

import (
	"github.com/gk2a/xritrx/internal/bitfield"
)

// TPFileHeaderSize is the size of the TP_File header in bytes.
const TPFileHeaderSize = 10

// TPFile is a CCSDS Transport File, reassembled from the payloads of one
// FIRST/SINGLE CP_PDU, zero or more CONTINUE CP_PDUs, and one LAST CP_PDU
// (each with its trailing 2-byte CRC already stripped).
type TPFile struct {
	// Counter is the file counter from the 10-byte header. Informational
	// only: a counter-to-channel-band mapping exists (VI006/SW038/WV069/
	// IR105/IR123 in ranges of 10) but correctness never depends on it.
	Counter uint16
	// Length is the declared payload length in bytes (the header's
	// bit-length field divided by 8).
	Length  int
	Payload []byte
}

// NewTPFile starts a new TP_File from the payload of a FIRST or SINGLE
// CP_PDU (CRC already stripped). data must be at least TPFileHeaderSize
// bytes; a shorter buffer yields a zero-value header, which will simply
// fail its length check at Finish time.
func NewTPFile(data []byte) *TPFile {
	t := &TPFile{}
	if len(data) < TPFileHeaderSize {
		t.Payload = append([]byte(nil), data...)
		return t
	}

	r := bitfield.NewReader(data[:TPFileHeaderSize])
	counter, _ := r.Uint64(16)
	bits, _ := r.Uint64(64)

	t.Counter = uint16(counter)
	t.Length = int(bits / 8)
	t.Payload = append([]byte(nil), data[TPFileHeaderSize:]...)
	return t
}

// Append adds more data (from a CONTINUE CP_PDU) to the TP_File payload.
func (t *TPFile) Append(data []byte) {
	t.Payload = append(t.Payload, data...)
}

// Finish appends the final chunk of data (from a LAST CP_PDU) and checks
// the accumulated payload length against the declared length.
func (t *TPFile) Finish(data []byte) (lengthOK bool) {
	t.Append(data)
	return len(t.Payload) == t.Length
}

// Band returns the informational image band name and 1-based segment
// number implied by the TP_File counter-to-band table. Not used for any
// correctness decision.
func (t *TPFile) Band() (band string, segment int) {
	switch {
	case t.Counter <= 9:
		return "VI006", int(t.Counter) + 1
	case t.Counter <= 19:
		return "SW038", int(t.Counter) - 9
	case t.Counter <= 29:
		return "WV069", int(t.Counter) - 19
	case t.Counter <= 39:
		return "IR105", int(t.Counter) - 29
	case t.Counter <= 49:
		return "IR123", int(t.Counter) - 39
	default:
		return "Other", 0
	}
}
