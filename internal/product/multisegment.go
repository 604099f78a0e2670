package product

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/gk2a/xritrx/internal/config"
	"github.com/gk2a/xritrx/internal/spdu"
)

// MultiSegmentImage assembles a full-disk image from many xRIT segments
// spread across one or more named channels (LRIT: one channel, 10
// segments; HRIT: five channels, 10 segments each). It owns a mapping
// {channel -> {segment -> decoded image}}; Complete once the running
// count of stored segments reaches the expected total.
type MultiSegmentImage struct {
	layout   segmentLayout
	downlink config.Downlink
	decoder  RasterDecoder

	mode string
	seq  string
	date string
	time string

	images map[string]map[int]image.Image
	count  int
	want   int
}

func newMultiSegmentImage(layout segmentLayout, downlink config.Downlink, name Name, decoder RasterDecoder) *MultiSegmentImage {
	want := 0
	for _, n := range layout.segmentCount {
		want += n
	}
	images := make(map[string]map[int]image.Image, len(layout.channels))
	for _, ch := range layout.channels {
		images[ch] = make(map[int]image.Image)
	}
	return &MultiSegmentImage{
		layout:   layout,
		downlink: downlink,
		decoder:  decoder,
		mode:     name.Mode,
		seq:      name.Seq,
		date:     name.Date,
		time:     name.Time,
		images:   images,
		want:     want,
	}
}

// Add decodes one xRIT segment's payload and stores it at
// images[channel][segment]. An xRIT for a channel this layout doesn't
// recognize, or a decode failure, is logged by the caller and simply not
// added — the composite is still emitted with that slot blank.
func (m *MultiSegmentImage) Add(x *spdu.XRIT) error {
	name, err := ParseName(x.FileName)
	if err != nil {
		return fmt.Errorf("product: multi-segment image: %w", err)
	}
	bucket, ok := m.images[name.Channel]
	if !ok {
		return fmt.Errorf("product: multi-segment image: unrecognized channel %q", name.Channel)
	}

	format := m.rasterFormat()
	img, err := m.decoder.Decode(format, x.DataField)
	if err != nil {
		return fmt.Errorf("product: decode segment %s/%d: %w", name.Channel, name.Segment, err)
	}

	if _, exists := bucket[name.Segment]; !exists {
		m.count++
	}
	bucket[name.Segment] = img
	return nil
}

func (m *MultiSegmentImage) rasterFormat() RasterFormat {
	return rasterFormatFor(m.downlink)
}

// Complete reports whether every expected segment, across every channel,
// has been stored.
func (m *MultiSegmentImage) Complete() bool {
	return m.count >= m.want
}

// Save builds one composite canvas per channel and writes each as a
// lossless-quality JPEG, pasting segments at vertical offset
// (segment-1)*segmentHeight. Missing segments leave their slot blank
// (the canvas starts zero-valued). Save returns the path of the last
// channel written; callers that need every path should inspect the
// output directory, matching the single string the save contract
// expects per product.
func (m *MultiSegmentImage) Save(root string) (string, error) {
	var last string
	for _, ch := range m.layout.channels {
		size := m.layout.canvasSize[ch]
		segCount := m.layout.segmentCount[ch]
		if segCount == 0 {
			continue
		}
		width, height := size[0], size[1]
		segHeight := height / segCount

		canvas := image.NewGray(image.Rect(0, 0, width, height))
		for seg, img := range m.images[ch] {
			offsetY := (seg - 1) * segHeight
			pasteInto(canvas, img, offsetY)
		}

		canonicalName := fmt.Sprintf("IMG_%s_%s_%s_%s_%s_00", m.mode, m.seq, ch, m.date, m.time)
		path, err := outputPath(root, m.downlink, m.date, m.mode, canonicalName, "jpg")
		if err != nil {
			return "", err
		}
		f, err := os.Create(path)
		if err != nil {
			return "", fmt.Errorf("product: create %s: %w", path, err)
		}
		err = jpeg.Encode(f, canvas, &jpeg.Options{Quality: 100})
		closeErr := f.Close()
		if err != nil {
			return "", fmt.Errorf("product: encode %s: %w", path, err)
		}
		if closeErr != nil {
			return "", fmt.Errorf("product: close %s: %w", path, closeErr)
		}
		last = path
	}
	return last, nil
}

// pasteInto copies src into dst starting at (0, offsetY), clipping to
// dst's bounds.
func pasteInto(dst *image.Gray, src image.Image, offsetY int) {
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		dy := offsetY + (y - b.Min.Y)
		if dy < dst.Bounds().Min.Y || dy >= dst.Bounds().Max.Y {
			continue
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			if x < dst.Bounds().Min.X || x >= dst.Bounds().Max.X {
				continue
			}
			dst.Set(x, dy, src.At(x, y))
		}
	}
}
