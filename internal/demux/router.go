package demux

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/gk2a/xritrx/internal/ccsds"
	"github.com/gk2a/xritrx/internal/channel"
	"github.com/gk2a/xritrx/internal/config"
)

// fifoCapacity sizes the buffered channel a producer writes into before
// falling back to the mutex-guarded overflow slice. Generous but not
// unbounded, matching mpegts.Demuxer's tolerance for a bursty producer
// without ever blocking it.
const fifoCapacity = 4096

// Source is satisfied by a VCDU source adapter (internal/vcdusource):
// one fixed-size frame per call, io.EOF at end of stream. Declared here
// rather than imported to avoid a cycle between demux and vcdusource.
type Source interface {
	Next(ctx context.Context) ([892]byte, error)
}

// Router owns the VCDU FIFO and the VCID-to-Channel registry. Source
// adapters feed it via Run's producer goroutine; Router.Run itself is
// the sole goroutine that mutates channel state, the same division of
// labor as Pipeline.Run's demuxer goroutine plus its own forwarding loop.
type Router struct {
	cfg  *config.Config
	sink channel.ProductSink
	log  *slog.Logger
	dump io.Writer

	fifo chan []byte

	overflowMu sync.Mutex
	overflow   [][]byte

	chMu     sync.Mutex
	channels map[uint8]*channel.Channel

	stateMu     sync.Mutex
	hasLastVCID bool
	lastVCID    uint8
	lastWasFill bool

	runMu  sync.Mutex
	cancel context.CancelFunc
}

// NewRouter constructs a Router. dump may be nil to disable the VCDU
// debug dump. If log is nil, slog.Default() is used.
func NewRouter(cfg *config.Config, sink channel.ProductSink, dump io.Writer, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		sink:     sink,
		log:      log.With("component", "router"),
		dump:     dump,
		fifo:     make(chan []byte, fifoCapacity),
		channels: make(map[uint8]*channel.Channel),
	}
}

// submit hands one raw VCDU buffer to the core loop without ever
// blocking the caller: the buffered channel absorbs bursts, and the
// overflow slice absorbs anything beyond that.
func (r *Router) submit(vcdu []byte) {
	select {
	case r.fifo <- vcdu:
	default:
		r.overflowMu.Lock()
		r.overflow = append(r.overflow, vcdu)
		r.overflowMu.Unlock()
	}
}

// next drains the overflow slice before the channel, preserving arrival
// order: overflow only grows when the channel is already full, so its
// oldest entries are older than anything still waiting in the channel.
func (r *Router) next(ctx context.Context) ([]byte, bool) {
	r.overflowMu.Lock()
	if len(r.overflow) > 0 {
		buf := r.overflow[0]
		r.overflow = r.overflow[1:]
		r.overflowMu.Unlock()
		return buf, true
	}
	r.overflowMu.Unlock()

	select {
	case buf, ok := <-r.fifo:
		return buf, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Stop cancels the context Run is operating under, if Run has started.
func (r *Router) Stop() {
	r.runMu.Lock()
	cancel := r.cancel
	r.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run starts the producer goroutine reading VCDUs from src and the core
// loop that routes each parsed VCDU to its Channel, notifying every other
// channel when the active VCID changes mid-stream. Run returns when ctx
// is cancelled, or when src reaches end of stream and every VCDU read
// from it has been processed.
func (r *Router) Run(ctx context.Context, src Source) error {
	ctx, cancel := context.WithCancel(ctx)
	r.runMu.Lock()
	r.cancel = cancel
	r.runMu.Unlock()
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			buf, err := src.Next(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					// Closing the FIFO, rather than cancelling ctx, lets
					// the core loop process every VCDU already queued.
					close(r.fifo)
					return
				}
				if ctx.Err() == nil {
					r.log.Warn("source read failed", "error", err)
				}
				cancel()
				return
			}
			cp := make([]byte, ccsds.VCDUSize)
			copy(cp, buf[:])
			r.submit(cp)
		}
	}()
	defer wg.Wait()

	for {
		buf, ok := r.next(ctx)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			return nil
		}
		r.handleVCDU(buf)
	}
}

func (r *Router) handleVCDU(buf []byte) {
	v, err := ccsds.ParseVCDU(buf)
	if err != nil {
		r.log.Warn("malformed VCDU", "error", err)
		return
	}

	r.dumpVCDU(v, buf)

	if v.SCID != ccsds.GK2ASCID {
		r.log.Warn("spacecraft not supported", "scid", v.SCID)
		return
	}

	r.stateMu.Lock()
	changed := r.hasLastVCID && r.lastVCID != v.VCID
	r.lastVCID = v.VCID
	r.hasLastVCID = true
	r.stateMu.Unlock()

	if changed {
		r.notifyAllExcept(v.VCID)
	}

	if r.cfg.Ignored(v.VCID) {
		return
	}

	r.getOrCreate(v.VCID).Handle(v)
}

// dumpVCDU writes buf to the debug dump writer, collapsing a run of
// consecutive fill VCDUs (VCID 63) down to the first one in the run.
func (r *Router) dumpVCDU(v *ccsds.VCDU, buf []byte) {
	if r.dump == nil {
		return
	}
	if v.VCID == ccsds.FillVCID {
		if r.lastWasFill {
			return
		}
		r.lastWasFill = true
	} else {
		r.lastWasFill = false
	}
	if _, err := r.dump.Write(buf); err != nil {
		r.log.Warn("VCDU dump write failed", "error", err)
	}
}

// notifyAllExcept force-closes every channel other than newVCID, mirroring
// the broadcast-to-all-handlers notify the original demuxer core performs
// on every VCID change: each channel only acts if it isn't the one that
// just became active. In practice at most one channel ever has in-flight
// state at a time, but broadcasting (rather than tracking just the one
// previously-active VCID) needs no assumption about that.
func (r *Router) notifyAllExcept(newVCID uint8) {
	r.chMu.Lock()
	targets := make([]*channel.Channel, 0, len(r.channels))
	for vcid, ch := range r.channels {
		if vcid != newVCID {
			targets = append(targets, ch)
		}
	}
	r.chMu.Unlock()

	for _, ch := range targets {
		ch.Notify()
	}
}

func (r *Router) getOrCreate(vcid uint8) *channel.Channel {
	r.chMu.Lock()
	defer r.chMu.Unlock()
	ch, ok := r.channels[vcid]
	if !ok {
		ch = channel.New(vcid, r.cfg, r.sink, r.log)
		r.channels[vcid] = ch
		r.log.Info("new channel", "vcid", vcid)
	}
	return ch
}

// DropsByVCID reports the continuity-drop counter for every channel seen
// so far, for the status endpoint.
func (r *Router) DropsByVCID() map[uint8]int64 {
	r.chMu.Lock()
	defer r.chMu.Unlock()
	out := make(map[uint8]int64, len(r.channels))
	for vcid, ch := range r.channels {
		out[vcid] = ch.Drops()
	}
	return out
}

// CurrentVCID reports the VCID of the most recently processed VCDU, and
// whether any VCDU has been processed yet.
func (r *Router) CurrentVCID() (uint8, bool) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.lastVCID, r.hasLastVCID
}
