package product

import (
	"fmt"
	"os"

	"github.com/gk2a/xritrx/internal/config"
	"github.com/gk2a/xritrx/internal/spdu"
)

// SingleSegmentImage is the catch-all product kind: one xRIT file in, one
// output file out, payload written verbatim. Used for any (spacecraft,
// downlink, mode) combination the dispatch table doesn't recognize as a
// multi-segment image.
type SingleSegmentImage struct {
	downlink config.Downlink
	name     Name
	data     []byte
	added    bool
}

func (s *SingleSegmentImage) Add(x *spdu.XRIT) error {
	name, err := ParseName(x.FileName)
	if err != nil {
		return fmt.Errorf("product: single-segment image: %w", err)
	}
	s.name = name
	s.data = append([]byte(nil), x.DataField...)
	s.added = true
	return nil
}

// Complete reports true once a single xRIT has been added: there is
// never more than one segment for this product kind.
func (s *SingleSegmentImage) Complete() bool {
	return s.added
}

func (s *SingleSegmentImage) Save(root string) (string, error) {
	if !s.added {
		return "", fmt.Errorf("product: single-segment image: save with no data")
	}
	ext := sniffExt(s.data)
	path, err := outputPath(root, s.downlink, s.name.Date, s.name.Mode, s.name.Base, ext)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, s.data, 0o644); err != nil {
		return "", fmt.Errorf("product: write %s: %w", path, err)
	}
	return path, nil
}
