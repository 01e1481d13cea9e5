// Package config provides configuration loading and management for dicomprep.
// It handles loading configuration from YAML files and provides default values.
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
	// Dataset parameters
	Dataset struct {
		// SeriesRoot is the directory containing one subdirectory per series
		SeriesRoot string `yaml:"seriesRoot"`

		// CSVPath optionally points to a manifest CSV whose
		// SeriesInstanceUID column selects the series to process
		CSVPath string `yaml:"csvPath"`
	} `yaml:"dataset"`

	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many series are preprocessed concurrently
		NumWorkers int `yaml:"numWorkers"`

		// TargetSpacing is the isotropic output spacing in mm (z, y, x)
		TargetSpacing [3]float64 `yaml:"targetSpacing"`

		// InterpolationOrder selects resampling interpolation:
		// 0 = nearest-neighbor, 1 = linear
		InterpolationOrder int `yaml:"interpolationOrder"`
	} `yaml:"processing"`

	// Cache parameters
	Cache struct {
		// Enabled controls whether preprocessed volumes are cached
		Enabled bool `yaml:"enabled"`

		// Dir is the cache directory
		Dir string `yaml:"dir"`
	} `yaml:"cache"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// ExportSlices saves a PNG slice sequence of the first processed
		// volume for visual inspection
		ExportSlices bool `yaml:"exportSlices"`

		// SlicesDir is the directory for exported slice images
		SlicesDir string `yaml:"slicesDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.TargetSpacing = [3]float64{1.0, 1.0, 1.0}
	cfg.Processing.InterpolationOrder = 1

	cfg.Cache.Enabled = true
	cfg.Cache.Dir = "cache"

	cfg.Output.Verbose = true
	cfg.Output.ExportSlices = false
	cfg.Output.SlicesDir = "exported_slices"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
