package vcdusource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gk2a/xritrx/internal/ccsds"
)

// FileSource replays a flat file of concatenated 892-byte VCDUs, used
// for offline testing and debugging. On reaching the end of the file it
// synthesizes one fill VCDU (VCID 63) before reporting io.EOF, so the
// Router's forced-flush-on-VCID-change logic closes out whatever was
// still in flight — matching the original's end-of-replay trigger.
type FileSource struct {
	f           *os.File
	fillEmitted bool
	exhausted   bool
}

// OpenFile opens path for VCDU replay.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vcdusource: open %s: %w", path, err)
	}
	return &FileSource{f: f}, nil
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}

func (s *FileSource) Next(_ context.Context) ([892]byte, error) {
	var buf [892]byte

	if s.exhausted {
		if !s.fillEmitted {
			s.fillEmitted = true
			return fillVCDU(), nil
		}
		return buf, io.EOF
	}

	_, err := io.ReadFull(s.f, buf[:])
	if err != nil {
		s.exhausted = true
		s.f.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.fillEmitted = true
			return fillVCDU(), nil
		}
		return buf, fmt.Errorf("vcdusource: file read: %w", err)
	}
	return buf, nil
}

// fillVCDU builds a complete, well-formed fill VCDU (VCID 63, no
// continuity meaning, M_PDU zone entirely continuation padding). It
// carries GK2ASCID so the router's spacecraft filter doesn't discard it
// before the VCID-change notification it's meant to trigger.
func fillVCDU() [892]byte {
	var out [892]byte

	h := uint64(ccsds.GK2ASCID)<<38 | uint64(ccsds.FillVCID&0x3F)<<32 // version=0, vcid=63, counter=0, replay=0, spare=0
	for i := 0; i < ccsds.VCDUHeaderSize; i++ {
		out[ccsds.VCDUHeaderSize-1-i] = byte(h >> (8 * i))
	}

	pointer := uint16(ccsds.NoHeaderPointer)
	out[ccsds.VCDUHeaderSize] = byte(pointer >> 8)
	out[ccsds.VCDUHeaderSize+1] = byte(pointer)

	return out
}
