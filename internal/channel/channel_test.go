package channel

import (
	"bytes"
	"testing"

	"github.com/gk2a/xritrx/internal/ccsds"
	"github.com/gk2a/xritrx/internal/config"
	"github.com/gk2a/xritrx/internal/crc16"
	"github.com/gk2a/xritrx/internal/spdu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingSink records every xRIT file handed to it, standing in for
// the product registry so these tests can assert on reassembly alone.
type capturingSink struct {
	accepted []*spdu.XRIT
}

func (s *capturingSink) Accept(x *spdu.XRIT) {
	s.accepted = append(s.accepted, x)
}

func mustCfg(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.New(config.SpacecraftGK2A, config.DownlinkLRIT, t.TempDir())
	require.NoError(t, err)
	return cfg
}

func buildVCDU(vcid uint8, counter uint32, mpduZone []byte) *ccsds.VCDU {
	return &ccsds.VCDU{VCID: vcid, Counter: counter, MPDUZone: mpduZone}
}

// mpduHeader builds the 2-byte M_PDU header for a first-header pointer
// (5 spare bits, left zero).
func mpduHeader(pointer int) []byte {
	h := uint16(pointer & 0x7FF)
	return []byte{byte(h >> 8), byte(h)}
}

// fullMPDUZone returns the complete 886-byte M_PDU (header + 884-byte
// packet zone) with packet placed at byte 0 of the zone and pointer
// pointing at it (or ccsds.NoHeaderPointer for continuation-only zones).
func fullMPDUZone(pointer int, packet []byte) []byte {
	zone := make([]byte, ccsds.MPDUZoneSize-ccsds.MPDUHeaderSize)
	copy(zone, packet)
	out := make([]byte, ccsds.MPDUZoneSize)
	copy(out[:ccsds.MPDUHeaderSize], mpduHeader(pointer))
	copy(out[ccsds.MPDUHeaderSize:], zone)
	return out
}

func cpPDUHeader(apid uint16, seq ccsds.Sequence, counter uint16, length int) []byte {
	h := uint64(apid&0x7FF)<<32 | uint64(seq&0x3)<<30 | uint64(counter&0x3FFF)<<16 | uint64(length-1)
	buf := make([]byte, 6)
	for i := 0; i < 6; i++ {
		buf[5-i] = byte(h >> (8 * i))
	}
	return buf
}

func withCRC(payload []byte) []byte {
	sum := crc16.Checksum(payload)
	return append(append([]byte{}, payload...), byte(sum>>8), byte(sum))
}

// buildXRIT assembles a minimal plaintext xRIT file (primary header +
// annotation text header + data field), with key-index 0 (unencrypted).
func buildXRIT(fileType uint8, name string, data []byte) []byte {
	annHeader := make([]byte, 3+len(name))
	annHeader[0] = 4 // annotation text record type
	annHeader[1] = byte(len(annHeader) >> 8)
	annHeader[2] = byte(len(annHeader))
	copy(annHeader[3:], name)

	totalHeaderLen := 16 + len(annHeader)
	primary := make([]byte, 16)
	primary[0] = 0
	primary[1], primary[2] = 0, 16
	primary[3] = fileType
	primary[4] = byte(totalHeaderLen >> 24)
	primary[5] = byte(totalHeaderLen >> 16)
	primary[6] = byte(totalHeaderLen >> 8)
	primary[7] = byte(totalHeaderLen)
	dataLen := uint64(len(data))
	for i := 0; i < 8; i++ {
		primary[15-i] = byte(dataLen >> (8 * i))
	}

	out := append([]byte{}, primary...)
	out = append(out, annHeader...)
	out = append(out, data...)
	return out
}

func tpFileHeader(counter uint16, payloadLen int) []byte {
	h := make([]byte, 10)
	h[0], h[1] = byte(counter>>8), byte(counter)
	bits := uint64(payloadLen) * 8
	for i := 0; i < 8; i++ {
		h[9-i] = byte(bits >> (8 * i))
	}
	return h
}

func TestChannelSingleCPPDUTextFile(t *testing.T) {
	xrit := buildXRIT(2, "ANT_xx_001_20260730_120000_00.txt", []byte("hello xrit"))
	tpPayload := append(tpFileHeader(1, len(xrit)), xrit...)
	cpPayload := withCRC(tpPayload)
	header := cpPDUHeader(4, ccsds.SeqSingle, 7, len(cpPayload))
	packet := append(header, cpPayload...)

	sink := &capturingSink{}
	c := New(4, mustCfg(t), sink, nil)
	c.Handle(buildVCDU(4, 1000, fullMPDUZone(0, packet)))

	require.Len(t, sink.accepted, 1)
	assert.Equal(t, "ANT_xx_001_20260730_120000_00.txt", sink.accepted[0].FileName)
	assert.Equal(t, []byte("hello xrit"), sink.accepted[0].DataField)
}

func TestChannelCPPDUSpanningTwoMPDUs(t *testing.T) {
	data := bytes.Repeat([]byte("spanning-frame-payload-"), 60) // forces a CP_PDU bigger than one M_PDU zone
	xrit := buildXRIT(2, "ANT_xx_002_20260730_120000_00.txt", data)
	tpPayload := append(tpFileHeader(2, len(xrit)), xrit...)
	cpPayload := withCRC(tpPayload)
	header := cpPDUHeader(5, ccsds.SeqSingle, 1, len(cpPayload))
	packet := append(header, cpPayload...)

	const zoneCap = ccsds.MPDUZoneSize - ccsds.MPDUHeaderSize
	require.Greater(t, len(packet), zoneCap, "fixture must not fit in a single M_PDU")

	firstChunk := packet[:zoneCap] // fills VCDU1's entire zone
	remaining := packet[zoneCap:]  // CP_PDU bytes left over for VCDU2
	require.Less(t, len(remaining), zoneCap, "remaining must fit within VCDU2's zone")

	sink := &capturingSink{}
	c := New(5, mustCfg(t), sink, nil)
	c.Handle(buildVCDU(5, 1, fullMPDUZone(0, firstChunk)))
	// VCDU2's first-header-pointer marks exactly where the CP_PDU's
	// remaining bytes end; what follows is zero padding that happens to
	// parse (harmlessly) as the EOF sentinel.
	c.Handle(buildVCDU(5, 2, fullMPDUZone(len(remaining), remaining)))

	require.Len(t, sink.accepted, 1)
	assert.Equal(t, data, sink.accepted[0].DataField)
}

func TestChannelContinuityGapIsLoggedNotFatal(t *testing.T) {
	sink := &capturingSink{}
	c := New(1, mustCfg(t), sink, nil)

	c.Handle(buildVCDU(1, 100, fullMPDUZone(ccsds.NoHeaderPointer, nil)))
	assert.Equal(t, int64(0), c.Drops())

	c.Handle(buildVCDU(1, 150, fullMPDUZone(ccsds.NoHeaderPointer, nil)))
	assert.Equal(t, int64(1), c.Drops())
}

func TestChannelContinuityWrapIsNotADrop(t *testing.T) {
	sink := &capturingSink{}
	c := New(1, mustCfg(t), sink, nil)

	c.Handle(buildVCDU(1, (1<<24)-1, fullMPDUZone(ccsds.NoHeaderPointer, nil)))
	c.Handle(buildVCDU(1, 0, fullMPDUZone(ccsds.NoHeaderPointer, nil)))
	assert.Equal(t, int64(0), c.Drops())
}

func TestChannelNotifyEmitsPartialTPFileOnVCIDChange(t *testing.T) {
	xrit := buildXRIT(2, "ANT_xx_003_20260730_120000_00.txt", []byte("0123456789"))
	tpPayload := append(tpFileHeader(3, len(xrit)), xrit...)
	cpPayload := withCRC(tpPayload)

	firstHeader := cpPDUHeader(9, ccsds.SeqFirst, 1, len(cpPayload))
	firstPacket := append(firstHeader, cpPayload[:20]...)

	sink := &capturingSink{}
	c := New(0, mustCfg(t), sink, nil)
	c.Handle(buildVCDU(0, 1, fullMPDUZone(0, firstPacket)))

	assert.Empty(t, sink.accepted, "no file emitted yet: CP_PDU/TP_File still in flight")

	c.Notify()

	require.Len(t, sink.accepted, 1, "forced close on VCID change must emit whatever was assembled")
}

func TestChannelEOFMarkerDoesNotDisturbClosedTPFile(t *testing.T) {
	xrit := buildXRIT(2, "ANT_xx_004_20260730_120000_00.txt", []byte("eof marker test"))
	tpPayload := append(tpFileHeader(4, len(xrit)), xrit...)
	cpPayload := withCRC(tpPayload)
	cpHeader := cpPDUHeader(2, ccsds.SeqSingle, 1, len(cpPayload))
	cpPacket := append(cpHeader, cpPayload...)

	eofHeader := cpPDUHeader(0, ccsds.SeqContinue, 0, 1)
	eofPacket := append(eofHeader, 0x00)

	sink := &capturingSink{}
	c := New(2, mustCfg(t), sink, nil)

	// First VCDU: a complete SINGLE CP_PDU, short enough to finish via
	// the short-packet rule within its own M_PDU, closing the TP_File.
	c.Handle(buildVCDU(2, 1, fullMPDUZone(0, cpPacket)))
	require.Len(t, sink.accepted, 1)
	assert.Equal(t, []byte("eof marker test"), sink.accepted[0].DataField)

	// Second VCDU: the synthetic EOF marker, on its own, must not touch
	// the TP_File already closed above or emit anything further.
	c.Handle(buildVCDU(2, 2, fullMPDUZone(0, eofPacket)))
	assert.Len(t, sink.accepted, 1)
}
