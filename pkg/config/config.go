// Package config provides configuration loading and management for the
// reconstruction engine. It handles loading configuration from YAML files
// and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to dump every z-axis slice
		// of the final reconstruction as a JPEG via internal/ioadapter.DiagnosticDumper
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where diagnostic slice dumps are written when
		// SaveIntermediaryResults is set
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Reconstruction parameters for the slice-to-volume engine
	Reconstruction struct {
		// Resolution is the isotropic grid spacing in mm; 0 derives it
		// from the smallest input voxel spacing
		Resolution float64 `yaml:"resolution"`

		// Delta is the edge-preservation parameter of the adaptive
		// regulariser
		Delta float64 `yaml:"delta"`

		// Lambda is the regularisation strength
		Lambda float64 `yaml:"lambda"`

		// SigmaBias is the Gaussian standard deviation in mm for the
		// bias-smoothing kernel
		SigmaBias float64 `yaml:"sigmaBias"`

		// NCCThreshold gates structural-outlier exclusion
		NCCThreshold float64 `yaml:"nccThreshold"`

		// OuterIterations and InnerIterations bound the outer/inner loop
		OuterIterations int `yaml:"outerIterations"`
		InnerIterations int `yaml:"innerIterations"`

		// ForceExcludedSlices lists slice indices pinned to weight 0
		ForceExcludedSlices []int `yaml:"forceExcludedSlices"`

		// FFDEnabled turns on free-form-deformation pose estimation
		FFDEnabled bool `yaml:"ffdEnabled"`

		// BiasEnabled turns on per-slice bias-field estimation
		BiasEnabled bool `yaml:"biasEnabled"`

		// GlobalBiasCorrection turns on the optional volume-level bias
		// correction pass
		GlobalBiasCorrection bool `yaml:"globalBiasCorrection"`

		// StructuralExclusion turns on the NCC-based structural-outlier
		// gate
		StructuralExclusion bool `yaml:"structuralExclusion"`

		// Adaptive selects the adaptive (confidence-weighted) vs.
		// non-adaptive super-resolution update
		Adaptive bool `yaml:"adaptive"`

		// Packages is the per-stack package count used for package-to-volume
		// initial pose seeding (1 disables it for that stack). Indexed by
		// stack order, same as -stacks.
		Packages []int `yaml:"packages"`

		// MultibandFactor is the per-stack multiband acceleration factor,
		// carried alongside Packages for StackMeta bookkeeping.
		MultibandFactor []int `yaml:"multibandFactor"`
	} `yaml:"reconstruction"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	
	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	// Set default output parameters
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = true

	// Set default reconstruction parameters
	cfg.Reconstruction.Delta = 150
	cfg.Reconstruction.Lambda = 0.02
	cfg.Reconstruction.SigmaBias = 12.0
	cfg.Reconstruction.NCCThreshold = 0.65
	cfg.Reconstruction.OuterIterations = 3
	cfg.Reconstruction.InnerIterations = 8
	cfg.Reconstruction.BiasEnabled = true
	cfg.Reconstruction.StructuralExclusion = true
	cfg.Reconstruction.Adaptive = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	
	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}
	
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	
	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	
	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	
	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
