// Package ccsds implements the CCSDS framing layers between a raw VCDU
// buffer and a reassembled Transport File: VCDU -> M_PDU -> CP_PDU ->
// TP_File. VCDU and MPDU are immutable once parsed: a parsed header plus
// a payload slice, produced in one pass and handed downstream. CPPDU and
// TPFile parse their header once and then grow their payload through
// Append as further M_PDUs or CP_PDUs arrive.
package ccsds

import (
	"fmt"

	"github.com/gk2a/xritrx/internal/bitfield"
)

// VCDUSize is the fixed size of a Virtual Channel Data Unit in bytes.
const VCDUSize = 892

// FillVCID is the virtual channel ID used for idle padding.
const FillVCID = 63

// GK2ASCID is the wire-level spacecraft ID for GK-2A. VCDUs carrying any
// other value are from a different spacecraft and must be discarded.
const GK2ASCID = 195

// VCDUHeaderSize is the size of the VCDU primary header in bytes.
const VCDUHeaderSize = 6

// VCDU is a parsed Virtual Channel Data Unit.
type VCDU struct {
	Version  uint8  // 2 bits
	SCID     uint8  // 8 bits, spacecraft ID
	VCID     uint8  // 6 bits, virtual channel ID
	Counter  uint32 // 24 bits, continuity counter, wraps at 2^24-1
	Replay   bool   // 1 bit
	MPDUZone []byte // remaining 886 bytes, the M_PDU zone
}

// ParseVCDU parses a fixed 892-byte VCDU buffer.
func ParseVCDU(buf []byte) (*VCDU, error) {
	if len(buf) != VCDUSize {
		return nil, fmt.Errorf("ccsds: VCDU size %d, expected %d", len(buf), VCDUSize)
	}

	r := bitfield.NewReader(buf[:VCDUHeaderSize])

	version, err := r.Uint64(2)
	if err != nil {
		return nil, fmt.Errorf("ccsds: VCDU version: %w", err)
	}
	scid, err := r.Uint64(8)
	if err != nil {
		return nil, fmt.Errorf("ccsds: VCDU scid: %w", err)
	}
	vcid, err := r.Uint64(6)
	if err != nil {
		return nil, fmt.Errorf("ccsds: VCDU vcid: %w", err)
	}
	counter, err := r.Uint64(24)
	if err != nil {
		return nil, fmt.Errorf("ccsds: VCDU counter: %w", err)
	}
	replay, err := r.Uint64(1)
	if err != nil {
		return nil, fmt.Errorf("ccsds: VCDU replay: %w", err)
	}
	// Spare bits (7) are intentionally skipped: always expected to be
	// zero but not validated.

	return &VCDU{
		Version:  uint8(version),
		SCID:     uint8(scid),
		VCID:     uint8(vcid),
		Counter:  uint32(counter),
		Replay:   replay != 0,
		MPDUZone: buf[VCDUHeaderSize:],
	}, nil
}
