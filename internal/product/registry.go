package product

import (
	"log/slog"
	"sync"

	"github.com/gk2a/xritrx/internal/config"
	"github.com/gk2a/xritrx/internal/spdu"
)

// Registry keeps one in-flight Product per canonical product key,
// dispatching each incoming xRIT file to the right one and saving it as
// soon as it's Complete. It satisfies channel.ProductSink without either
// package importing the other — the Router wires the two together.
type Registry struct {
	cfg     *config.Config
	decoder RasterDecoder
	log     *slog.Logger

	mu       sync.Mutex
	inflight map[string]Product
}

// NewRegistry constructs a Registry. If log is nil, slog.Default() is
// used.
func NewRegistry(cfg *config.Config, decoder RasterDecoder, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		decoder:  decoder,
		log:      log.With("component", "product-registry"),
		inflight: make(map[string]Product),
	}
}

// key groups xRIT files belonging to the same product instance: all
// channels and segments of one multi-segment image pass share a key.
// Single-segment and text files of the same kind, mode, sequence, date
// and time also share a key, which is harmless since such products
// complete (and are evicted) on their first Add.
func key(n Name) string {
	return string(n.Kind) + "|" + n.Mode + "|" + n.Seq + "|" + n.Date + "|" + n.Time
}

// Accept dispatches x to its in-flight Product (creating one if this is
// the first segment seen for its key), adds it, and saves + evicts the
// product once Complete. Errors are logged, never returned: a
// decode/save failure for one product must not stop the demux core,
// which owns the only goroutine driving this call.
func (r *Registry) Accept(x *spdu.XRIT) {
	name, err := ParseName(x.FileName)
	if err != nil {
		r.log.Warn("cannot parse xRIT file name", "name", x.FileName, "error", err)
		return
	}

	r.mu.Lock()
	k := key(name)
	p, ok := r.inflight[k]
	if !ok {
		p = New(r.cfg, name, r.decoder)
		r.inflight[k] = p
	}
	r.mu.Unlock()

	if err := p.Add(x); err != nil {
		r.log.Warn("failed to add xRIT to product", "name", x.FileName, "error", err)
		return
	}

	if !p.Complete() {
		return
	}

	r.mu.Lock()
	delete(r.inflight, k)
	r.mu.Unlock()

	path, err := p.Save(r.cfg.OutputRoot)
	if err != nil {
		r.log.Warn("failed to save product", "name", x.FileName, "error", err)
		return
	}
	r.log.Info("product saved", "path", path)
}

// InFlight returns the product keys currently awaiting completion, for
// the status endpoint.
func (r *Registry) InFlight() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.inflight))
	for k := range r.inflight {
		keys = append(keys, k)
	}
	return keys
}

// Flush force-saves and evicts every in-flight product, saving partial
// products as they are. cmd/xritrx calls it once the demux core has
// stopped.
func (r *Registry) Flush() {
	r.mu.Lock()
	pending := r.inflight
	r.inflight = make(map[string]Product)
	r.mu.Unlock()

	for k, p := range pending {
		path, err := p.Save(r.cfg.OutputRoot)
		if err != nil {
			r.log.Warn("failed to save product on flush", "key", k, "error", err)
			continue
		}
		r.log.Info("partial product saved on flush", "path", path)
	}
}
