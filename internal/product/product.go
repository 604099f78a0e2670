// Package product turns a stream of decrypted xRIT files into named
// artifacts on disk: single files for text/single-segment images, and
// composite JPEGs assembled from many xRIT segments for multi-segment
// products. The three concrete kinds share one interface, dispatched by
// New the way the original source's products.new() picks a constructor
// from a dict keyed on (spacecraft, downlink, mode), falling back to a
// single-segment image on an unrecognized mode.
package product

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gk2a/xritrx/internal/config"
	"github.com/gk2a/xritrx/internal/spdu"
)

// Product is the tagged-union interface every concrete product kind
// satisfies: accumulate one xRIT file, report completion, and save the
// accumulated result to disk.
type Product interface {
	// Add incorporates one decrypted xRIT file into the product.
	Add(x *spdu.XRIT) error
	// Complete reports whether the product has every segment it expects.
	// A product may also be saved while incomplete (Registry.Flush),
	// producing a partial artifact.
	Complete() bool
	// Save writes the product under root and returns the output path.
	Save(root string) (string, error)
}

// mode identifies a dispatch bucket: (downlink, name-mode-field).
type mode struct {
	downlink config.Downlink
	field    string
}

// segmentLayout describes one multi-segment image product's channel set
// and per-channel composite/segment geometry.
type segmentLayout struct {
	channels     []string
	segmentCount map[string]int
	canvasSize   map[string][2]int // width, height
}

// Dispatch table: (spacecraft, downlink, mode field) -> multi-segment
// layout. The table only names multi-segment layouts; text and fallback
// single-segment kinds are handled directly in New.
var multiSegmentLayouts = map[config.Spacecraft]map[mode]segmentLayout{
	config.SpacecraftGK2A: {
		{config.DownlinkLRIT, "FD"}: {
			channels:     []string{"IR105"},
			segmentCount: map[string]int{"IR105": 10},
			canvasSize:   map[string][2]int{"IR105": {2200, 2200}},
		},
		{config.DownlinkHRIT, "FD"}: {
			channels: []string{"VI006", "SW038", "WV069", "IR105", "IR123"},
			segmentCount: map[string]int{
				"VI006": 10, "SW038": 10, "WV069": 10, "IR105": 10, "IR123": 10,
			},
			canvasSize: map[string][2]int{
				"VI006": {11000, 11000},
				"SW038": {2750, 2750},
				"WV069": {2750, 2750},
				"IR105": {2750, 2750},
				"IR123": {2750, 2750},
			},
		},
	},
}

// New dispatches on the xRIT annotation file name to construct the
// appropriate Product. An unrecognized mode falls back to
// SingleSegmentImage, mirroring the original dispatcher's KeyError
// fallback.
func New(cfg *config.Config, name Name, decoder RasterDecoder) Product {
	if name.Kind == KindText {
		return &AlphanumericText{downlink: cfg.Downlink}
	}

	if name.Kind == KindImage {
		if layout, ok := multiSegmentLayouts[cfg.Spacecraft][mode{cfg.Downlink, name.Mode}]; ok {
			return newMultiSegmentImage(layout, cfg.Downlink, name, decoder)
		}
	}

	return &SingleSegmentImage{downlink: cfg.Downlink}
}

// rasterFormatFor returns the RasterFormat implied by a downlink: LRIT
// segments are plain JPEG, HRIT segments are JPEG2000.
func rasterFormatFor(downlink config.Downlink) RasterFormat {
	if downlink == config.DownlinkHRIT {
		return RasterJPEG2000
	}
	return RasterJPEG
}

// outputPath builds the canonical output path for a saved product:
// <root>/<downlink>/<YYYYMMDD>/<mode>/<canonical_name>.<ext>
func outputPath(root string, downlink config.Downlink, date, mode, canonicalName, ext string) (string, error) {
	dir := filepath.Join(root, string(downlink), date, mode)
	if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
		return "", fmt.Errorf("product: create output dir %s: %w", dir, err)
	}
	return filepath.Join(dir, canonicalName+"."+ext), nil
}

// sniffExt infers a file extension from a magic-byte probe on data,
// falling back to ".bin" for anything unrecognized.
func sniffExt(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "gif"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}):
		return "png"
	default:
		return "bin"
	}
}
