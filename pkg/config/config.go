// Package config provides configuration loading and management for roikit.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"roikit/internal/models"
	"roikit/pkg/anatomy"
	"roikit/pkg/casematch"
	"roikit/pkg/components"
	"roikit/pkg/metadata"
	"roikit/pkg/roi"
)

// EnvConfigPath names the environment variable holding the default config path
const EnvConfigPath = "ROIKIT_CONFIG"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Taxonomy maps classes to label IDs and minimum component sizes
	Taxonomy models.LabelTaxonomy `yaml:"taxonomy"`

	// Crop stage parameters
	Crop struct {
		// Padding is the margin in voxels added around the mask box, per axis (z, y, x)
		Padding []int `yaml:"padding"`

		// MaskThreshold binarizes coarse masks: voxels above it are foreground
		MaskThreshold float64 `yaml:"maskThreshold"`

		// ShiftOrigin moves the crop affine to the box start
		ShiftOrigin bool `yaml:"shiftOrigin"`

		// MetadataLayout is "flat" or "nested"
		MetadataLayout string `yaml:"metadataLayout"`
	} `yaml:"crop"`

	// Containment parameters for lesion classes
	Containment struct {
		// Strategy is "voxel" or "overlap"
		Strategy string `yaml:"strategy"`

		// DilationRadius grows the organ before overlap is measured
		DilationRadius int `yaml:"dilationRadius"`

		// MinOverlapRatio is the fraction of a lesion component that must
		// lie inside the dilated organ for the component to be kept
		MinOverlapRatio float64 `yaml:"minOverlapRatio"`

		// Connectivity is 6, 18 or 26
		Connectivity int `yaml:"connectivity"`

		// Hierarchical measures organ components together with the lesions they hold
		Hierarchical bool `yaml:"hierarchical"`
	} `yaml:"containment"`

	// Matching parameters
	Matching struct {
		// IDWidth is the zero-pad width of canonical case IDs
		IDWidth int `yaml:"idWidth"`
	} `yaml:"matching"`

	// Processing parameters
	Processing struct {
		// NumWorkers is how many cases are processed in parallel
		NumWorkers int `yaml:"numWorkers"`

		// MaxCases bounds the number of cases attempted; 0 means all
		MaxCases int `yaml:"maxCases"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// ReportPath is the Parquet ledger written after each run; empty disables it
		ReportPath string `yaml:"reportPath"`

		// PreviewDir receives one PNG preview per pasted case; empty disables it
		PreviewDir string `yaml:"previewDir"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Taxonomy = models.DefaultTaxonomy()

	cfg.Crop.Padding = []int{12, 12, 12}
	cfg.Crop.MaskThreshold = 0.5
	cfg.Crop.ShiftOrigin = false
	cfg.Crop.MetadataLayout = metadata.Flat.String()

	ac := anatomy.DefaultConfig()
	cfg.Containment.Strategy = string(ac.Strategy)
	cfg.Containment.DilationRadius = ac.DilationRadius
	cfg.Containment.MinOverlapRatio = ac.MinOverlapRatio
	cfg.Containment.Connectivity = int(ac.Connectivity)
	cfg.Containment.Hierarchical = ac.Hierarchical

	cfg.Matching.IDWidth = casematch.DefaultWidth

	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.MaxCases = 0

	return cfg
}

// Validate checks every section and reports the first problem found
func (c *Config) Validate() error {
	if len(c.Crop.Padding) != 3 {
		return fmt.Errorf("crop.padding must have 3 values (z, y, x), got %d", len(c.Crop.Padding))
	}
	for i, p := range c.Crop.Padding {
		if p < 0 {
			return fmt.Errorf("crop.padding[%d] must be non-negative, got %d", i, p)
		}
	}
	if _, err := metadata.ParseLayout(c.Crop.MetadataLayout); err != nil {
		return fmt.Errorf("crop.metadataLayout: %w", err)
	}
	if _, err := c.Anatomy(); err != nil {
		return err
	}
	if c.Matching.IDWidth < 1 {
		return fmt.Errorf("matching.idWidth must be at least 1, got %d", c.Matching.IDWidth)
	}
	if c.Processing.NumWorkers < 1 {
		return fmt.Errorf("processing.numWorkers must be at least 1, got %d", c.Processing.NumWorkers)
	}
	if c.Processing.MaxCases < 0 {
		return fmt.Errorf("processing.maxCases must be non-negative, got %d", c.Processing.MaxCases)
	}
	return nil
}

// CropOptions returns the crop settings for roi.CropToMask
func (c *Config) CropOptions() roi.CropOptions {
	var opts roi.CropOptions
	copy(opts.Padding[:], c.Crop.Padding)
	opts.ShiftOrigin = c.Crop.ShiftOrigin
	return opts
}

// Anatomy builds and validates the post-processing configuration
func (c *Config) Anatomy() (anatomy.Config, error) {
	strategy, err := anatomy.ParseStrategy(c.Containment.Strategy)
	if err != nil {
		return anatomy.Config{}, fmt.Errorf("containment.strategy: %w", err)
	}
	ac := anatomy.Config{
		Taxonomy:        c.Taxonomy,
		Strategy:        strategy,
		DilationRadius:  c.Containment.DilationRadius,
		MinOverlapRatio: c.Containment.MinOverlapRatio,
		Connectivity:    components.Connectivity(c.Containment.Connectivity),
		Hierarchical:    c.Containment.Hierarchical,
	}
	if err := ac.Validate(); err != nil {
		return anatomy.Config{}, err
	}
	return ac, nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
