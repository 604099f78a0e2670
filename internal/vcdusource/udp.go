package vcdusource

import (
	"context"
	"fmt"
	"log/slog"
	"net"
)

// UDPSource receives one fixed-size VCDU per datagram on a bound UDP
// socket, matching goesrecv's UDP output mode.
type UDPSource struct {
	conn *net.UDPConn
	log  *slog.Logger
}

// ListenUDP binds addr and returns a UDPSource reading VCDUs from it. If
// log is nil, slog.Default() is used.
func ListenUDP(addr string, log *slog.Logger) (*UDPSource, error) {
	if log == nil {
		log = slog.Default()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("vcdusource: resolve udp addr %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("vcdusource: bind udp %s: %w", addr, err)
	}
	return &UDPSource{conn: conn, log: log.With("component", "vcdusource-udp", "addr", addr)}, nil
}

// Close closes the underlying socket.
func (s *UDPSource) Close() error {
	return s.conn.Close()
}

// Next reads one VCDU-sized datagram. A datagram of the wrong size is
// reported as an error rather than silently discarded, unlike the
// original, which drops short reads with no diagnostic at all.
func (s *UDPSource) Next(ctx context.Context) ([892]byte, error) {
	var buf [892]byte
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(dl)
	}
	n, _, err := s.conn.ReadFromUDP(buf[:])
	if err != nil {
		return buf, fmt.Errorf("vcdusource: udp read: %w", err)
	}
	if n != len(buf) {
		return buf, fmt.Errorf("vcdusource: udp datagram size %d, expected %d", n, len(buf))
	}
	return buf, nil
}
