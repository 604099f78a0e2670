// Package status implements the read-only HTTP status endpoint: current
// VCID, per-channel continuity-drop counters, and in-flight product
// keys, as JSON. It hand-rolls its routes on http.ServeMux rather than
// pulling in a router library, the way internal/distribution.Server does.
package status
