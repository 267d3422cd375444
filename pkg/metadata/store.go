// Package metadata persists the crop geometry that bridges the crop and
// paste stages as a JSON sidecar per case.
//
// Two on-disk layouts are accepted on load:
//
//	{"case": "...", "z": [s, e], "y": [s, e], "x": [s, e], "orig_shape": [Z, Y, X]}
//	{"bbox": {"z": [s, e], "y": [s, e], "x": [s, e]}, "orig_shape": [Z, Y, X]}
//
// Older sidecars may carry "orig_shape_zyx" instead of "orig_shape". All
// of them normalize to the same models.CropMetadata.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"roikit/internal/models"
)

// ErrInvalidMetadata is returned when a sidecar cannot describe a crop
var ErrInvalidMetadata = errors.New("invalid crop metadata")

// Extension is the file extension of metadata sidecars
const Extension = ".json"

// Layout selects the on-disk form written by Save
type Layout int

const (
	// Flat writes z/y/x at the top level next to orig_shape
	Flat Layout = iota
	// Nested writes z/y/x under a bbox key
	Nested
)

// ParseLayout maps a layout name to its value
func ParseLayout(name string) (Layout, error) {
	switch name {
	case "", "flat":
		return Flat, nil
	case "nested":
		return Nested, nil
	}
	return Flat, fmt.Errorf("unknown metadata layout %q (want flat or nested)", name)
}

func (l Layout) String() string {
	if l == Nested {
		return "nested"
	}
	return "flat"
}

type boxRecord struct {
	Z []int `json:"z"`
	Y []int `json:"y"`
	X []int `json:"x"`
}

type record struct {
	Case string `json:"case,omitempty"`

	Z []int `json:"z,omitempty"`
	Y []int `json:"y,omitempty"`
	X []int `json:"x,omitempty"`

	BBox *boxRecord `json:"bbox,omitempty"`

	OrigShape    []int `json:"orig_shape,omitempty"`
	OrigShapeZYX []int `json:"orig_shape_zyx,omitempty"`
}

// Marshal encodes m in the given layout
func Marshal(m models.CropMetadata, layout Layout) ([]byte, error) {
	rec := record{
		Case:      m.Case,
		OrigShape: []int{m.OrigShape[0], m.OrigShape[1], m.OrigShape[2]},
	}
	box := boxRecord{
		Z: []int{m.BBox[0].Start, m.BBox[0].Stop},
		Y: []int{m.BBox[1].Start, m.BBox[1].Stop},
		X: []int{m.BBox[2].Start, m.BBox[2].Stop},
	}
	if layout == Nested {
		rec.BBox = &box
	} else {
		rec.Z, rec.Y, rec.X = box.Z, box.Y, box.X
	}
	return json.MarshalIndent(rec, "", "  ")
}

// Unmarshal decodes either layout into a validated CropMetadata
func Unmarshal(data []byte) (models.CropMetadata, error) {
	var m models.CropMetadata

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	// top-level z/y/x take precedence over a bbox key
	box := boxRecord{Z: rec.Z, Y: rec.Y, X: rec.X}
	if rec.Z == nil && rec.BBox != nil {
		box = *rec.BBox
	}
	shape := rec.OrigShape
	if shape == nil {
		shape = rec.OrigShapeZYX
	}

	for i, r := range [][]int{box.Z, box.Y, box.X} {
		rng, err := parseRange(r)
		if err != nil {
			return m, fmt.Errorf("%w: axis %s: %v", ErrInvalidMetadata, "zyx"[i:i+1], err)
		}
		m.BBox[i] = rng
	}

	if len(shape) != 3 {
		return m, fmt.Errorf("%w: orig_shape must have 3 elements, got %d", ErrInvalidMetadata, len(shape))
	}
	for i, d := range shape {
		if d <= 0 {
			return m, fmt.Errorf("%w: orig_shape[%d] = %d is not positive", ErrInvalidMetadata, i, d)
		}
		m.OrigShape[i] = d
	}

	m.Case = rec.Case
	return m, nil
}

func parseRange(r []int) (models.Range, error) {
	if len(r) != 2 {
		return models.Range{}, fmt.Errorf("expected [start, stop], got %d elements", len(r))
	}
	if r[0] < 0 || r[0] > r[1] {
		return models.Range{}, fmt.Errorf("range [%d, %d) is not ordered and non-negative", r[0], r[1])
	}
	return models.Range{Start: r[0], Stop: r[1]}, nil
}

// Save writes m to path in the given layout
func Save(path string, m models.CropMetadata, layout Layout) error {
	data, err := Marshal(m, layout)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads and normalizes the sidecar at path
func Load(path string) (models.CropMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.CropMetadata{}, err
	}
	m, err := Unmarshal(data)
	if err != nil {
		return m, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Store keeps one sidecar per case in a directory
type Store struct {
	Dir    string
	Layout Layout
}

// NewStore returns a store rooted at dir writing the given layout
func NewStore(dir string, layout Layout) *Store {
	return &Store{Dir: dir, Layout: layout}
}

// Path returns the sidecar path for a case token
func (s *Store) Path(caseName string) string {
	return filepath.Join(s.Dir, caseName+Extension)
}

// Put writes the sidecar for m.Case
func (s *Store) Put(m models.CropMetadata) error {
	if m.Case == "" {
		return fmt.Errorf("%w: case name is empty", ErrInvalidMetadata)
	}
	return Save(s.Path(m.Case), m, s.Layout)
}

// Get reads the sidecar for a case token
func (s *Store) Get(caseName string) (models.CropMetadata, error) {
	return Load(s.Path(caseName))
}
