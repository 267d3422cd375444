package nifti

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"roikit/internal/models"
)

// Extensions recognised as volume files, longest first
var Extensions = []string{".nii.gz", ".nii"}

// IsVolumeFile reports whether name carries a NIfTI extension
func IsVolumeFile(name string) bool {
	return TrimExt(name) != name
}

// TrimExt strips a NIfTI extension from name, if present
func TrimExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// Load reads a volume from path; .gz files are decompressed transparently.
func Load(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	vol, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, nil
}

// Save writes vol to path, creating parent directories as needed.
// A .gz suffix selects gzip compression.
func Save(path string, vol *models.Volume) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		if err := Encode(f, vol); err != nil {
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
		return f.Close()
	}

	gz := gzip.NewWriter(f)
	if err := Encode(gz, vol); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream %s: %w", path, err)
	}
	return f.Close()
}
