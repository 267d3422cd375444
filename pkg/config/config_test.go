package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"roikit/pkg/anatomy"
	"roikit/pkg/components"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.Taxonomy.Organ.ID != 1 || cfg.Taxonomy.Organ.MinVoxels != 20000 {
		t.Errorf("Expected organ 1/20000, got %d/%d", cfg.Taxonomy.Organ.ID, cfg.Taxonomy.Organ.MinVoxels)
	}
	if len(cfg.Taxonomy.Lesions) != 2 {
		t.Fatalf("Expected 2 lesion classes, got %d", len(cfg.Taxonomy.Lesions))
	}
	if cfg.Taxonomy.Lesions[0].MinVoxels != 200 || cfg.Taxonomy.Lesions[1].MinVoxels != 50 {
		t.Errorf("Expected lesion thresholds 200/50, got %d/%d",
			cfg.Taxonomy.Lesions[0].MinVoxels, cfg.Taxonomy.Lesions[1].MinVoxels)
	}
	if opts := cfg.CropOptions(); opts.Padding != [3]int{12, 12, 12} {
		t.Errorf("Expected padding 12,12,12, got %v", opts.Padding)
	}
	if cfg.Matching.IDWidth != 5 {
		t.Errorf("Expected ID width 5, got %d", cfg.Matching.IDWidth)
	}
	if cfg.Processing.NumWorkers <= 0 {
		t.Errorf("Expected positive worker count, got %d", cfg.Processing.NumWorkers)
	}

	ac, err := cfg.Anatomy()
	if err != nil {
		t.Fatalf("Anatomy failed: %v", err)
	}
	if diff := cmp.Diff(anatomy.DefaultConfig(), ac); diff != "" {
		t.Errorf("anatomy config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got error: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadConfig(""); err != nil {
		t.Errorf("Expected defaults for an empty path, got error: %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roikit.yaml")
	doc := `
taxonomy:
  organ: {name: kidney, id: 1, minVoxels: 5000}
  lesions:
    - {name: tumor, id: 2, minVoxels: 100}
crop:
  padding: [4, 8, 8]
containment:
  strategy: overlap
  dilationRadius: 3
  connectivity: 6
processing:
  numWorkers: 2
  maxCases: 10
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Loaded config should be valid: %v", err)
	}

	if cfg.Taxonomy.Organ.Name != "kidney" || cfg.Taxonomy.Organ.MinVoxels != 5000 {
		t.Errorf("Expected kidney/5000, got %s/%d", cfg.Taxonomy.Organ.Name, cfg.Taxonomy.Organ.MinVoxels)
	}
	if len(cfg.Taxonomy.Lesions) != 1 {
		t.Errorf("Expected 1 lesion class, got %d", len(cfg.Taxonomy.Lesions))
	}
	if opts := cfg.CropOptions(); opts.Padding != [3]int{4, 8, 8} {
		t.Errorf("Expected padding 4,8,8, got %v", opts.Padding)
	}
	// untouched keys keep their defaults
	if cfg.Crop.MaskThreshold != 0.5 {
		t.Errorf("Expected mask threshold 0.5, got %v", cfg.Crop.MaskThreshold)
	}

	ac, err := cfg.Anatomy()
	if err != nil {
		t.Fatalf("Anatomy failed: %v", err)
	}
	if ac.Strategy != anatomy.Overlap || ac.DilationRadius != 3 || ac.Connectivity != components.Face {
		t.Errorf("Unexpected containment settings: %+v", ac)
	}
	if ac.MinOverlapRatio != 0.10 {
		t.Errorf("Expected default overlap ratio 0.10, got %v", ac.MinOverlapRatio)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("crop: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short padding", func(c *Config) { c.Crop.Padding = []int{1, 2} }},
		{"negative padding", func(c *Config) { c.Crop.Padding = []int{1, -2, 3} }},
		{"bad layout", func(c *Config) { c.Crop.MetadataLayout = "xml" }},
		{"bad strategy", func(c *Config) { c.Containment.Strategy = "nearest" }},
		{"bad connectivity", func(c *Config) { c.Containment.Connectivity = 4 }},
		{"zero id width", func(c *Config) { c.Matching.IDWidth = 0 }},
		{"zero workers", func(c *Config) { c.Processing.NumWorkers = 0 }},
		{"negative max cases", func(c *Config) { c.Processing.MaxCases = -1 }},
		{"background class", func(c *Config) { c.Taxonomy.Organ.ID = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "roikit.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}
