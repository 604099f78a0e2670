package product

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gk2a/xritrx/internal/config"
	"github.com/gk2a/xritrx/internal/spdu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAcceptSavesCompleteTextProduct(t *testing.T) {
	root := t.TempDir()
	cfg := mustCfg(t, config.DownlinkLRIT, root)
	r := NewRegistry(cfg, NopDecoder{}, nil)

	x := &spdu.XRIT{
		FileName:  "ANT_xx_001_20260730_120000_00.txt",
		DataField: []byte("bulletin text"),
	}
	r.Accept(x)

	path := filepath.Join(root, "LRIT", "20260730", "xx", "ANT_xx_001_20260730_120000_00.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bulletin text", string(data))
}

func TestRegistryFlushSavesPartialMultiSegmentImage(t *testing.T) {
	root := t.TempDir()
	cfg := mustCfg(t, config.DownlinkLRIT, root)
	r := NewRegistry(cfg, NopDecoder{Width: 220, Height: 220}, nil)

	x := &spdu.XRIT{
		FileName:  "IMG_FD_001_IR105_20260730_120000_01.lrit",
		DataField: encodeJPEG(t, 220, 220),
	}
	r.Accept(x) // only 1 of 10 segments: not yet complete, stays in-flight

	r.Flush()

	path := filepath.Join(root, "LRIT", "20260730", "FD", "IMG_FD_001_IR105_20260730_120000_00.jpg")
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
