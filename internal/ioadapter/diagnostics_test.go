package ioadapter

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svrecon/internal/model"
)

func TestExtractSliceZAxisDimensions(t *testing.T) {
	v := model.NewVolume(3, 4, 5, 1, model.IdentityAffine())
	d := DiagnosticDumper{}

	img, err := d.ExtractSlice(v, "z", 0, -1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestExtractSliceRejectsOutOfRangePosition(t *testing.T) {
	v := model.NewVolume(3, 4, 5, 1, model.IdentityAffine())
	d := DiagnosticDumper{}

	_, err := d.ExtractSlice(v, "z", 5, -1, 1)
	assert.Error(t, err)
}

func TestExtractSliceRejectsInvalidAxis(t *testing.T) {
	v := model.NewVolume(3, 4, 5, 1, model.IdentityAffine())
	d := DiagnosticDumper{}

	_, err := d.ExtractSlice(v, "w", 0, -1, 1)
	assert.Error(t, err)
}

func TestDumpSequenceWritesOneFilePerSlice(t *testing.T) {
	v := model.NewVolume(2, 2, 3, 1, model.IdentityAffine())
	d := DiagnosticDumper{}
	dir := t.TempDir()

	require.NoError(t, d.DumpSequence(v, "z", dir, -1, 1))

	for pos := 0; pos < 3; pos++ {
		path := filepath.Join(dir, fmt.Sprintf("slice_z_%03d.jpg", pos))
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}
