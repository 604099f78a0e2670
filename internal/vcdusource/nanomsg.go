package vcdusource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
)

// nanomsgFrameSize is the 8-byte nanomsg SP header prefixing every VCDU
// on the goesrecv publisher socket, in addition to the 892-byte payload.
const nanomsgFrameSize = 8

// nanomsgConnectMagic and nanomsgConnectReply are the one-time handshake
// exchanged when connecting to a goesrecv nanomsg publisher: write the
// magic, then verify the reply, before any VCDU reads.
var (
	nanomsgConnectMagic = []byte{0x00, 0x53, 0x50, 0x00, 0x00, 0x21, 0x00, 0x00}
	nanomsgConnectReply = []byte{0x00, 0x53, 0x50, 0x00, 0x00, 0x20, 0x00, 0x00}
)

// NanomsgTCPSource reads VCDUs from a goesrecv nanomsg publisher over
// TCP: each read is an 8-byte nanomsg frame header followed by one
// 892-byte VCDU, and the connection is primed with a handshake.
type NanomsgTCPSource struct {
	conn net.Conn
	log  *slog.Logger
}

// DialNanomsgTCP connects to addr, performs the nanomsg handshake, and
// returns a NanomsgTCPSource. If log is nil, slog.Default() is used.
func DialNanomsgTCP(ctx context.Context, addr string, log *slog.Logger) (*NanomsgTCPSource, error) {
	if log == nil {
		log = slog.Default()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("vcdusource: dial nanomsg tcp %s: %w", addr, err)
	}

	if _, err := conn.Write(nanomsgConnectMagic); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vcdusource: nanomsg handshake write: %w", err)
	}
	reply := make([]byte, len(nanomsgConnectReply))
	if _, err := io.ReadFull(conn, reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vcdusource: nanomsg handshake read: %w", err)
	}
	if !bytes.Equal(reply, nanomsgConnectReply) {
		conn.Close()
		return nil, fmt.Errorf("vcdusource: unexpected nanomsg handshake reply % x", reply)
	}

	return &NanomsgTCPSource{conn: conn, log: log.With("component", "vcdusource-nng", "addr", addr)}, nil
}

// Close closes the underlying connection.
func (s *NanomsgTCPSource) Close() error {
	return s.conn.Close()
}

// Next reads one nanomsg-framed VCDU, discarding its 8-byte frame header.
func (s *NanomsgTCPSource) Next(ctx context.Context) ([892]byte, error) {
	var out [892]byte
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(dl)
	}

	var framed [nanomsgFrameSize + 892]byte
	_, err := io.ReadFull(s.conn, framed[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return out, io.EOF
		}
		return out, fmt.Errorf("vcdusource: nanomsg read: %w", err)
	}
	copy(out[:], framed[nanomsgFrameSize:])
	return out, nil
}
