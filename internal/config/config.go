// Package config holds the immutable configuration record passed down to
// the demultiplexer at construction time. There is no package-level
// global: every component that needs a setting receives it explicitly,
// the way internal/distribution.ServerConfig is threaded through Server.
package config

import (
	"fmt"

	"github.com/gk2a/xritrx/internal/ccsds"
	"github.com/gk2a/xritrx/internal/keytable"
)

// Spacecraft identifies the source satellite. Only GK-2A is implemented;
// the field exists because the product dispatch table is keyed on it.
type Spacecraft string

const SpacecraftGK2A Spacecraft = "GK-2A"

// Downlink identifies the broadcast rate/band a VCDU stream came from.
type Downlink string

const (
	DownlinkLRIT Downlink = "LRIT"
	DownlinkHRIT Downlink = "HRIT"
)

// Config is the immutable set of options a Router and its channels are
// constructed with. Build one with New and never mutate it afterward;
// every field is read concurrently by the demux core and, for Keys,
// is itself safe for concurrent reads after Load.
type Config struct {
	Spacecraft Spacecraft
	Downlink   Downlink

	// OutputRoot is the directory product files are written under.
	OutputRoot string

	// Blacklist is the set of VCIDs to discard even though they carry
	// real traffic (distinct from the VCID-63 fill channel, which is
	// always discarded).
	Blacklist map[uint8]bool

	// Keys is the DES key table used by the S_PDU stage. A nil or empty
	// table disables decryption.
	Keys *keytable.Table

	// DumpPath, if non-empty, is the file VCDUs are appended to verbatim
	// for offline debugging (the VCDU dump).
	DumpPath string

	Verbose bool
}

// Option configures a Config under construction.
type Option func(*Config)

func WithBlacklist(vcids ...uint8) Option {
	return func(c *Config) {
		for _, v := range vcids {
			c.Blacklist[v] = true
		}
	}
}

func WithKeys(keys *keytable.Table) Option {
	return func(c *Config) { c.Keys = keys }
}

func WithDumpPath(path string) Option {
	return func(c *Config) { c.DumpPath = path }
}

func WithVerbose(v bool) Option {
	return func(c *Config) { c.Verbose = v }
}

// New builds a Config for spacecraft/downlink, writing products under
// outputRoot. It returns an error only for an unrecognized spacecraft or
// downlink, or an empty outputRoot — a fatal configuration error.
func New(spacecraft Spacecraft, downlink Downlink, outputRoot string, opts ...Option) (*Config, error) {
	if spacecraft != SpacecraftGK2A {
		return nil, fmt.Errorf("config: unsupported spacecraft %q", spacecraft)
	}
	if downlink != DownlinkLRIT && downlink != DownlinkHRIT {
		return nil, fmt.Errorf("config: unsupported downlink %q", downlink)
	}
	if outputRoot == "" {
		return nil, fmt.Errorf("config: output root must not be empty")
	}

	c := &Config{
		Spacecraft: spacecraft,
		Downlink:   downlink,
		OutputRoot: outputRoot,
		Blacklist:  make(map[uint8]bool),
		Keys:       keytable.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ignored reports whether vcid should be discarded before channel
// creation: the fill channel (63) or an explicitly blacklisted VCID.
func (c *Config) Ignored(vcid uint8) bool {
	return vcid == ccsds.FillVCID || c.Blacklist[vcid]
}
