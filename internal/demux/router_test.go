package demux

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/gk2a/xritrx/internal/ccsds"
	"github.com/gk2a/xritrx/internal/config"
	"github.com/gk2a/xritrx/internal/crc16"
	"github.com/gk2a/xritrx/internal/spdu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSink struct {
	accepted []*spdu.XRIT
}

func (s *capturingSink) Accept(x *spdu.XRIT) {
	s.accepted = append(s.accepted, x)
}

// fakeSource replays a fixed slice of VCDU buffers, then io.EOF.
type fakeSource struct {
	vcdus [][]byte
	i     int
}

func (f *fakeSource) Next(ctx context.Context) ([892]byte, error) {
	var out [892]byte
	if f.i >= len(f.vcdus) {
		return out, io.EOF
	}
	copy(out[:], f.vcdus[f.i])
	f.i++
	return out, nil
}

func mustCfg(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.New(config.SpacecraftGK2A, config.DownlinkLRIT, t.TempDir())
	require.NoError(t, err)
	return cfg
}

// rawVCDU builds a complete 892-byte VCDU buffer with scid fixed to
// ccsds.GK2ASCID so the router's spacecraft filter passes it through.
func rawVCDU(vcid uint8, counter uint32, mpduZone []byte) []byte {
	v := uint64(ccsds.GK2ASCID)<<38 | uint64(vcid&0x3F)<<32 | uint64(counter&0xFFFFFF)<<8
	header := make([]byte, ccsds.VCDUHeaderSize)
	for i := 0; i < ccsds.VCDUHeaderSize; i++ {
		header[ccsds.VCDUHeaderSize-1-i] = byte(v >> (8 * i))
	}
	out := make([]byte, ccsds.VCDUSize)
	copy(out, header)
	copy(out[ccsds.VCDUHeaderSize:], mpduZone)
	return out
}

func mpduZone(pointer int, packet []byte) []byte {
	h := uint16(pointer & 0x7FF)
	zone := make([]byte, ccsds.MPDUZoneSize)
	zone[0], zone[1] = byte(h>>8), byte(h)
	copy(zone[2:], packet)
	return zone
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

func buildXRIT(fileType uint8, name string, data []byte) []byte {
	annHeader := make([]byte, 3+len(name))
	annHeader[0] = 4
	annHeader[1] = byte(len(annHeader) >> 8)
	annHeader[2] = byte(len(annHeader))
	copy(annHeader[3:], name)

	totalHeaderLen := 16 + len(annHeader)
	primary := make([]byte, 16)
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

func TestRouterCreatesChannelLazilyAndTracksDrops(t *testing.T) {
	src := &fakeSource{vcdus: [][]byte{
		rawVCDU(4, 100, mpduZone(ccsds.NoHeaderPointer, nil)),
		rawVCDU(4, 150, mpduZone(ccsds.NoHeaderPointer, nil)), // gap: one drop
	}}
	r := NewRouter(mustCfg(t), &capturingSink{}, nil, nil)
	require.NoError(t, r.Run(context.Background(), src))

	drops := r.DropsByVCID()
	require.Contains(t, drops, uint8(4))
	assert.Equal(t, int64(1), drops[4])

	vcid, ok := r.CurrentVCID()
	require.True(t, ok)
	assert.Equal(t, uint8(4), vcid)
}

func TestRouterIgnoresFillVCID(t *testing.T) {
	src := &fakeSource{vcdus: [][]byte{
		rawVCDU(ccsds.FillVCID, 1, mpduZone(ccsds.NoHeaderPointer, nil)),
	}}
	r := NewRouter(mustCfg(t), &capturingSink{}, nil, nil)
	require.NoError(t, r.Run(context.Background(), src))

	assert.Empty(t, r.DropsByVCID(), "fill VCID must never get a channel")
}

func TestRouterNotifiesPreviousChannelOnVCIDChange(t *testing.T) {
	xrit := buildXRIT(2, "ANT_xx_001_20260730_120000_00.txt", []byte("0123456789"))
	tpPayload := append(tpFileHeader(1, len(xrit)), xrit...)
	cpPayload := withCRC(tpPayload)
	firstHeader := cpPDUHeader(9, ccsds.SeqFirst, 1, len(cpPayload))
	firstPacket := append(firstHeader, cpPayload[:20]...) // only a partial CP_PDU

	sink := &capturingSink{}
	src := &fakeSource{vcdus: [][]byte{
		rawVCDU(7, 1, mpduZone(0, firstPacket)), // VCID 7: CP_PDU left in flight
		rawVCDU(8, 1, mpduZone(ccsds.NoHeaderPointer, nil)), // VCID changes to 8
	}}
	r := NewRouter(mustCfg(t), sink, nil, nil)
	require.NoError(t, r.Run(context.Background(), src))

	require.Len(t, sink.accepted, 1, "VCID change must force-close VCID 7's in-flight TP_File")
}

func TestRouterDumpsVCDUsCollapsingFillRuns(t *testing.T) {
	var dump bytes.Buffer
	src := &fakeSource{vcdus: [][]byte{
		rawVCDU(5, 1, mpduZone(ccsds.NoHeaderPointer, nil)),
		rawVCDU(ccsds.FillVCID, 2, mpduZone(ccsds.NoHeaderPointer, nil)),
		rawVCDU(ccsds.FillVCID, 3, mpduZone(ccsds.NoHeaderPointer, nil)),
		rawVCDU(ccsds.FillVCID, 4, mpduZone(ccsds.NoHeaderPointer, nil)),
		rawVCDU(5, 5, mpduZone(ccsds.NoHeaderPointer, nil)),
	}}
	r := NewRouter(mustCfg(t), &capturingSink{}, &dump, nil)
	require.NoError(t, r.Run(context.Background(), src))

	assert.Equal(t, ccsds.VCDUSize*3, dump.Len(), "fill run of 3 collapses to 1 dumped VCDU")
}
