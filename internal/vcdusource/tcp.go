package vcdusource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
)

// TCPSource reads back-to-back fixed-size VCDUs from a plain TCP stream.
type TCPSource struct {
	conn net.Conn
	log  *slog.Logger
}

// DialTCP connects to addr and returns a TCPSource reading VCDUs from it.
// If log is nil, slog.Default() is used.
func DialTCP(ctx context.Context, addr string, log *slog.Logger) (*TCPSource, error) {
	if log == nil {
		log = slog.Default()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("vcdusource: dial tcp %s: %w", addr, err)
	}
	return &TCPSource{conn: conn, log: log.With("component", "vcdusource-tcp", "addr", addr)}, nil
}

// Close closes the underlying connection.
func (s *TCPSource) Close() error {
	return s.conn.Close()
}

// Next reads the next 892-byte VCDU, blocking until a full frame arrives.
func (s *TCPSource) Next(ctx context.Context) ([892]byte, error) {
	return readVCDU(ctx, s.conn)
}

// readVCDU reads exactly VCDUSize bytes from r, honoring ctx's deadline
// when r supports SetReadDeadline (net.Conn does). A short read at EOF
// is reported as io.EOF, matching the original's "if len(data) == buflen"
// discard-short-reads behavior, but surfaced as a sentinel instead of
// silently dropping the partial frame.
func readVCDU(ctx context.Context, r net.Conn) ([892]byte, error) {
	var buf [892]byte
	if dl, ok := ctx.Deadline(); ok {
		_ = r.SetReadDeadline(dl)
	}
	_, err := io.ReadFull(r, buf[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return buf, io.EOF
		}
		return buf, fmt.Errorf("vcdusource: tcp read: %w", err)
	}
	return buf, nil
}
