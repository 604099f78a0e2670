// Package demux implements the VCDU demultiplexer core: a FIFO of raw
// 892-byte VCDU buffers is drained by one goroutine that parses each
// VCDU, routes it to the Channel for its VCID (creating one lazily on
// first sight), and notifies every other in-flight Channel whenever the
// active VCID changes so they can force-close whatever they were
// assembling.
//
// The central type is [Router], which owns the FIFO and the VCID-to-
// Channel registry. Source adapters (internal/vcdusource) push VCDUs in;
// Router.Run drains them on the sole core-state-mutating goroutine.
package demux
