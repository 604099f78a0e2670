// Package channel implements the per-VCID state machine: continuity
// tracking, M_PDU-to-CP_PDU reassembly across frame boundaries, and
// CP_PDU-to-TP_File assembly. One Channel exists per observed VCID, the
// way internal/mpegts's packet accumulator exists per PID — built the
// same way: one struct per identifier, explicit discontinuity handling
// before assembly, and a forced-flush method for closure on identifier
// change.
package channel

import (
	"log/slog"

	"github.com/gk2a/xritrx/internal/ccsds"
	"github.com/gk2a/xritrx/internal/config"
	"github.com/gk2a/xritrx/internal/spdu"
)

const counterModulus = 1 << 24

// ProductSink receives the finished or forcibly-closed xRIT files a
// Channel produces, keeping one in-flight Product per product key so
// multi-segment products can span several xRIT arrivals. The Router owns
// one ProductSink per Config and shares it across all channels, since
// segments of the same product can legally arrive on different VCDUs
// over time (though never concurrently, per the single-consumer model).
type ProductSink interface {
	// Accept hands a decrypted xRIT file to the sink, which dispatches
	// it to the right in-flight Product, adds it, and saves the product
	// once Complete.
	Accept(x *spdu.XRIT)
}

// Channel reassembles one VCID's CP_PDUs and TP_Files.
type Channel struct {
	vcid uint8
	cfg  *config.Config
	sink ProductSink
	log  *slog.Logger

	hasLast     bool
	lastCounter uint32
	drops       int64

	cpdu *ccsds.CPPDU
	tp   *ccsds.TPFile
}

// New constructs a Channel for vcid. If log is nil, slog.Default() is
// used.
func New(vcid uint8, cfg *config.Config, sink ProductSink, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		vcid: vcid,
		cfg:  cfg,
		sink: sink,
		log:  log.With("component", "channel", "vcid", vcid),
	}
}

// Drops returns the number of continuity gaps observed so far, for the
// status endpoint.
func (c *Channel) Drops() int64 {
	return c.drops
}

// Handle processes one VCDU already known to belong to this channel:
// updates continuity accounting, then reassembles its M_PDU zone.
func (c *Channel) Handle(v *ccsds.VCDU) {
	c.checkContinuity(v.Counter)

	m, err := ccsds.ParseMPDU(v.MPDUZone)
	if err != nil {
		c.log.Warn("malformed M_PDU", "error", err)
		return
	}
	c.processMPDU(m)
}

// checkContinuity compares counter against the last observed value,
// accepting the first VCDU unconditionally and logging (but not
// resetting state for) any gap. Wrap at 2^24 is treated as a legal
// successor, never a drop.
func (c *Channel) checkContinuity(counter uint32) {
	if !c.hasLast {
		c.hasLast = true
		c.lastCounter = counter
		return
	}

	gap := (uint64(counter) + counterModulus - uint64(c.lastCounter) - 1) % counterModulus
	if gap > 0 {
		c.drops++
		c.log.Warn("continuity gap", "expected", (c.lastCounter+1)%counterModulus, "got", counter, "gap", gap)
	}
	c.lastCounter = counter
}

// processMPDU implements the M_PDU Case A / Case B split: continuation-only
// zones (no header pointer) versus zones where a new CP_PDU header starts
// at the declared pointer offset.
func (c *Channel) processMPDU(m *ccsds.MPDU) {
	if !m.HasHeader() {
		// Case A: entire zone is continuation data.
		if c.cpdu == nil {
			c.log.Warn("dropped CP_PDU: continuation data with no in-flight packet")
			return
		}
		c.cpdu.Append(m.PacketZone)
		return
	}

	// Case B: split at the first-header pointer.
	p := m.Pointer
	pre, post := m.PacketZone[:p], m.PacketZone[p:]

	if c.cpdu != nil {
		c.finishCPPDU(pre)
	}

	c.cpdu = ccsds.NewCPPDU(post)

	if c.cpdu.Parsed() {
		if c.cpdu.IsEOF() {
			// The EOF sentinel never touches the in-flight TP_File,
			// which was already closed by the preceding SEQ=LAST.
			c.cpdu = nil
			return
		}
		c.applyShortPacketRule()
	}
}

// applyShortPacketRule implements the short-packet special case:
// a CP_PDU whose declared length fits entirely within the remainder of
// this one M_PDU, with trailing padding, is truncated and finished
// immediately rather than waiting for a LAST flag that will never come
// spanning frames.
func (c *Channel) applyShortPacketRule() {
	// TODO: the declared-length lower bound "2..885" is suspiciously
	// exclusive of 1 (the EOF marker's own length); the exact relationship
	// between this rule and the EOF check isn't stated anywhere upstream,
	// so it is retained unchanged pending clarification.
	if c.cpdu.Length < 2 || c.cpdu.Length > 885 {
		return
	}
	if len(c.cpdu.Payload) <= c.cpdu.Length {
		return
	}
	c.cpdu.TruncatePayload()
	c.finishCPPDU(nil)
}

// finishCPPDU closes the in-flight CP_PDU with tail as its final bytes
// and hands it to the TP_File assembler regardless of whether its length
// or CRC checks pass.
func (c *Channel) finishCPPDU(tail []byte) {
	cpdu := c.cpdu
	c.cpdu = nil

	lengthOK, crcOK := cpdu.Finish(tail)
	if !lengthOK {
		c.log.Warn("CP_PDU length mismatch", "declared", cpdu.Length, "got", len(cpdu.Payload))
	}
	if !crcOK {
		c.log.Warn("CP_PDU CRC mismatch", "apid", cpdu.APID, "seq", cpdu.Seq)
	}
	c.assembleTPFile(cpdu)
}

// assembleTPFile routes a finished CP_PDU into the
// in-flight TP_File by sequence flag.
func (c *Channel) assembleTPFile(cpdu *ccsds.CPPDU) {
	payload := trimCRC(cpdu.Payload)

	switch cpdu.Seq {
	case ccsds.SeqFirst:
		c.tp = ccsds.NewTPFile(payload)
	case ccsds.SeqSingle:
		c.tp = ccsds.NewTPFile(payload)
		c.closeTPFile()
	case ccsds.SeqContinue:
		if c.tp == nil {
			c.log.Warn("dropped CONTINUE CP_PDU: no in-flight TP_File")
			return
		}
		c.tp.Append(payload)
	case ccsds.SeqLast:
		if c.tp == nil {
			c.log.Warn("dropped LAST CP_PDU: no in-flight TP_File")
			return
		}
		c.tp.Append(payload)
		c.closeTPFile()
	}
}

// closeTPFile closes the in-flight TP_File (already fully appended),
// compares its payload length with its declared length, and on a match
// decrypts and routes it as an xRIT file.
func (c *Channel) closeTPFile() {
	tp := c.tp
	c.tp = nil
	if tp == nil {
		return
	}

	if len(tp.Payload) != tp.Length {
		c.log.Warn("TP_File length mismatch, discarding", "declared", tp.Length, "got", len(tp.Payload))
		return
	}
	c.emit(tp.Payload)
}

// emit runs the S_PDU decryption stage and, on success, hands the
// resulting xRIT file to the product sink.
func (c *Channel) emit(data []byte) {
	plain, err := spdu.Decrypt(data, c.cfg.Keys, c.log)
	if err != nil {
		c.log.Warn("S_PDU decrypt failed", "error", err)
		return
	}
	x, err := spdu.Parse(plain)
	if err != nil {
		c.log.Warn("xRIT parse failed", "error", err)
		return
	}
	c.sink.Accept(x)
}

// Notify reports that the router has observed a different VCID is
// now active. Any in-flight TP_File is forcibly closed (decrypted and
// emitted as a partial xRIT), and the in-flight CP_PDU is dropped
// silently — there is no way to recover a mid-packet boundary without
// continuity. Notify does not touch products: an incomplete product
// stays in the ProductSink until it completes or the sink is flushed.
func (c *Channel) Notify() {
	if c.cpdu != nil {
		c.log.Debug("dropping in-flight CP_PDU on VCID change")
		c.cpdu = nil
	}
	if c.tp != nil {
		c.log.Info("file is incomplete, emitting partial TP_File on VCID change", "declared", c.tp.Length, "got", len(c.tp.Payload))
		tp := c.tp
		c.tp = nil
		c.emit(tp.Payload)
	}
}

// trimCRC strips the trailing 2-byte CRC from a CP_PDU payload, per
// each CP_PDU contributes its payload with the trailing CRC stripped.
func trimCRC(payload []byte) []byte {
	if len(payload) < 2 {
		return nil
	}
	return payload[:len(payload)-2]
}
