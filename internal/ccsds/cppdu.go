package ccsds

import (
	"github.com/gk2a/xritrx/internal/bitfield"
	"github.com/gk2a/xritrx/internal/crc16"
)

// CPPDUHeaderSize is the size of the CP_PDU header in bytes.
const CPPDUHeaderSize = 6

// Sequence is the CP_PDU sequence flag, indicating this packet's position
// within a TP_File.
type Sequence uint8

// Sequence flag values, per the 2-bit CP_PDU header field.
const (
	SeqContinue Sequence = 0
	SeqFirst    Sequence = 1
	SeqLast     Sequence = 2
	SeqSingle   Sequence = 3
)

func (s Sequence) String() string {
	switch s {
	case SeqContinue:
		return "CONTINUE"
	case SeqFirst:
		return "FIRST"
	case SeqLast:
		return "LAST"
	case SeqSingle:
		return "SINGLE"
	default:
		return "UNKNOWN"
	}
}

// CPPDU is a CCSDS Path PDU, reassembled incrementally as M_PDUs arrive.
// It moves through three states: header-incomplete (fewer than 6 header
// bytes seen), header-parsed/payload-growing, and payload-complete
// (after Finish).
type CPPDU struct {
	header []byte // accumulated header bytes, up to CPPDUHeaderSize
	parsed bool

	Version  uint8
	Type     uint8
	SHF      uint8
	APID     uint16
	Seq      Sequence
	Counter  uint16
	Length   int // true payload length; wire field is length-1
	Payload  []byte
}

// NewCPPDU starts a new CP_PDU from data, the bytes immediately following
// an M_PDU's first-header pointer. If data is shorter than the 6-byte
// header, the header is left incomplete and must be completed via Append
// once more M_PDU data arrives.
func NewCPPDU(data []byte) *CPPDU {
	c := &CPPDU{}
	if len(data) >= CPPDUHeaderSize {
		c.header = append([]byte(nil), data[:CPPDUHeaderSize]...)
		c.parse()
		c.Payload = append([]byte(nil), data[CPPDUHeaderSize:]...)
	} else {
		c.header = append([]byte(nil), data...)
	}
	return c
}

// Parsed reports whether the 6-byte header has been fully parsed.
func (c *CPPDU) Parsed() bool {
	return c.parsed
}

func (c *CPPDU) parse() {
	r := bitfield.NewReader(c.header)
	ver, _ := r.Uint64(3)
	typ, _ := r.Uint64(1)
	shf, _ := r.Uint64(1)
	apid, _ := r.Uint64(11)
	seq, _ := r.Uint64(2)
	counter, _ := r.Uint64(14)
	length, _ := r.Uint64(16)

	c.Version = uint8(ver)
	c.Type = uint8(typ)
	c.SHF = uint8(shf)
	c.APID = uint16(apid)
	c.Seq = Sequence(seq)
	c.Counter = uint16(counter)
	c.Length = int(length) + 1
	c.parsed = true
}

// Append adds more data to the CP_PDU, completing the header first if it
// isn't yet fully parsed.
func (c *CPPDU) Append(data []byte) {
	if !c.parsed {
		rem := CPPDUHeaderSize - len(c.header)
		n := rem
		if n > len(data) {
			n = len(data)
		}
		c.header = append(c.header, data[:n]...)
		data = data[n:]

		if len(c.header) == CPPDUHeaderSize {
			c.parse()
			c.Payload = append(c.Payload, data...)
		}
		// Still short of a full header: all of data went into the header,
		// and the next Append call supplies the rest of it.
		return
	}

	c.Payload = append(c.Payload, data...)
}

// Finish appends the final chunk of data and checks the payload against
// its declared length and trailing CRC-16/CCITT-FALSE. Both results are
// returned regardless of outcome — downstream decides whether to use the
// packet even on a CRC mismatch, per the broadcast's tolerant framing.
func (c *CPPDU) Finish(data []byte) (lengthOK, crcOK bool) {
	c.Append(data)

	lengthOK = len(c.Payload) == c.Length
	crcOK = len(c.Payload) >= 2 && crc16.Verify(c.Payload)
	return lengthOK, crcOK
}

// IsEOF reports whether this is the synthetic TP_File EOF marker CP_PDU:
// APID=0, counter=0, sequence=CONTINUE, length=1.
func (c *CPPDU) IsEOF() bool {
	return c.parsed && c.APID == 0 && c.Counter == 0 && c.Length == 1 && c.Seq == SeqContinue
}

// TruncatePayload trims the payload to the declared length, discarding
// trailing M_PDU padding. Used for the short-packet special case where a
// CP_PDU fits within a single M_PDU with slack afterward.
func (c *CPPDU) TruncatePayload() {
	if len(c.Payload) > c.Length {
		c.Payload = c.Payload[:c.Length]
	}
}
