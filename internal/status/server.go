package status

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// RouterStats is the subset of demux.Router's API this endpoint reports.
type RouterStats interface {
	CurrentVCID() (vcid uint8, ok bool)
	DropsByVCID() map[uint8]int64
}

// ProductStats is the subset of product.Registry's API this endpoint
// reports.
type ProductStats interface {
	InFlight() []string
}

// Response is the JSON body served at GET /status.
type Response struct {
	VCID             *uint8          `json:"vcid"`
	Drops            map[uint8]int64 `json:"drops"`
	InFlightProducts []string        `json:"inFlightProducts"`
}

// Server serves the read-only status endpoint. It holds no mutable state
// of its own: every field it reports is read live from router and
// products at request time.
type Server struct {
	router   RouterStats
	products ProductStats
	log      *slog.Logger
}

// NewServer constructs a Server. If log is nil, slog.Default() is used.
func NewServer(router RouterStats, products ProductStats, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{router: router, products: products, log: log.With("component", "status")}
}

// Handler returns the http.Handler for the status endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := Response{
		Drops:            s.router.DropsByVCID(),
		InFlightProducts: s.products.InFlight(),
	}
	if vcid, ok := s.router.CurrentVCID(); ok {
		resp.VCID = &vcid
	}
	if resp.InFlightProducts == nil {
		resp.InFlightProducts = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("encoding status response", "error", err)
	}
}
