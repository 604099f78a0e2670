package product

import (
	"fmt"
	"os"

	"github.com/gk2a/xritrx/internal/config"
	"github.com/gk2a/xritrx/internal/spdu"
)

// AlphanumericText is a single xRIT text file (GTS messages, annotation
// bulletins): payload written verbatim with a forced ".txt" extension.
type AlphanumericText struct {
	downlink config.Downlink
	name     Name
	data     []byte
	added    bool
}

func (t *AlphanumericText) Add(x *spdu.XRIT) error {
	name, err := ParseName(x.FileName)
	if err != nil {
		return fmt.Errorf("product: alphanumeric text: %w", err)
	}
	t.name = name
	t.data = append([]byte(nil), x.DataField...)
	t.added = true
	return nil
}

func (t *AlphanumericText) Complete() bool {
	return t.added
}

func (t *AlphanumericText) Save(root string) (string, error) {
	if !t.added {
		return "", fmt.Errorf("product: alphanumeric text: save with no data")
	}
	path, err := outputPath(root, t.downlink, t.name.Date, t.name.Mode, t.name.Base, "txt")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, t.data, 0o644); err != nil {
		return "", fmt.Errorf("product: write %s: %w", path, err)
	}
	return path, nil
}
