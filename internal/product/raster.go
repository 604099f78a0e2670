package product

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
)

// RasterFormat identifies the on-wire encoding of an image segment's
// payload, which the S_PDU layer never inspects — decoding is entirely
// the raster decoder's concern.
type RasterFormat string

const (
	RasterJPEG     RasterFormat = "jpeg" // LRIT
	RasterJPEG2000 RasterFormat = "jp2"  // HRIT
)

// ErrUnsupportedRaster is returned by a RasterDecoder that cannot handle
// the requested format.
var ErrUnsupportedRaster = errors.New("product: unsupported raster format")

// RasterDecoder decodes one image segment's payload into an image.Image.
// Decoding is injected rather than built in: this package only knows how
// to place decoded segments into a composite, not how to decode any
// particular codec.
type RasterDecoder interface {
	Decode(format RasterFormat, data []byte) (image.Image, error)
}

// NopDecoder returns a flat gray placeholder of the requested size for
// every segment, regardless of format. Useful for exercising the
// assembler and its tests without a real codec wired in.
type NopDecoder struct {
	Width, Height int
}

func (d NopDecoder) Decode(format RasterFormat, data []byte) (image.Image, error) {
	img := image.NewGray(image.Rect(0, 0, d.Width, d.Height))
	gray := color.Gray{Y: 128}
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			img.SetGray(x, y, gray)
		}
	}
	return img, nil
}

// StdlibDecoder decodes LRIT segments (plain JPEG) using the standard
// library's image/jpeg package. JPEG2000 (HRIT) has no standard-library
// or in-pack decoder, so Decode reports ErrUnsupportedRaster for it; a
// production deployment injects a real J2K-capable RasterDecoder instead.
type StdlibDecoder struct{}

func (StdlibDecoder) Decode(format RasterFormat, data []byte) (image.Image, error) {
	if format != RasterJPEG {
		return nil, ErrUnsupportedRaster
	}
	return jpeg.Decode(bytes.NewReader(data))
}
