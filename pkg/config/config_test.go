package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Reconstruction.Delta, cfg.Reconstruction.Delta)
}

func TestSaveThenLoadConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := DefaultConfig()
	cfg.Reconstruction.Lambda = 0.05
	cfg.Reconstruction.ForceExcludedSlices = []int{2, 5}

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.05, loaded.Reconstruction.Lambda)
	assert.Equal(t, []int{2, 5}, loaded.Reconstruction.ForceExcludedSlices)
}

func TestCreateDefaultConfigFileIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Reconstruction.OuterIterations, loaded.Reconstruction.OuterIterations)
}
