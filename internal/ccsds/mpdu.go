package ccsds

import (
	"fmt"

	"github.com/gk2a/xritrx/internal/bitfield"
)

// MPDUZoneSize is the size of the M_PDU zone within a VCDU (892 - 6).
const MPDUZoneSize = VCDUSize - VCDUHeaderSize

// MPDUHeaderSize is the size of the M_PDU header in bytes.
const MPDUHeaderSize = 2

// NoHeaderPointer is the first-header-pointer sentinel meaning "no CP_PDU
// header starts in this M_PDU — continuation data only".
const NoHeaderPointer = 2047 // 0x7FF

// MPDU is a parsed Multiplexing PDU.
type MPDU struct {
	// Pointer is the byte offset of the first CP_PDU header starting
	// within PacketZone, or NoHeaderPointer if none does.
	Pointer int
	// PacketZone is the 884-byte payload following the 2-byte header.
	PacketZone []byte
}

// HasHeader reports whether a CP_PDU header starts within this M_PDU.
func (m *MPDU) HasHeader() bool {
	return m.Pointer != NoHeaderPointer
}

// ParseMPDU parses the 886-byte M_PDU zone of a VCDU.
func ParseMPDU(data []byte) (*MPDU, error) {
	if len(data) != MPDUZoneSize {
		return nil, fmt.Errorf("ccsds: M_PDU zone size %d, expected %d", len(data), MPDUZoneSize)
	}

	r := bitfield.NewReader(data[:MPDUHeaderSize])
	r.Skip(5) // spare, must be zero
	pointer, err := r.Uint64(11)
	if err != nil {
		return nil, fmt.Errorf("ccsds: M_PDU pointer: %w", err)
	}

	return &MPDU{
		Pointer:    int(pointer),
		PacketZone: data[MPDUHeaderSize:],
	}, nil
}
