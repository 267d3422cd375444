package models

import "fmt"

// Shape is the extent of a volume along axes (Z, Y, X).
// Axis 0 varies slowest in memory.
type Shape [3]int

// Len returns the number of voxels in the shape
func (s Shape) Len() int {
	return s[0] * s[1] * s[2]
}

// Index returns the row-major offset of voxel (z, y, x)
func (s Shape) Index(z, y, x int) int {
	return (z*s[1]+y)*s[2] + x
}

// Coords is the inverse of Index
func (s Shape) Coords(idx int) (z, y, x int) {
	x = idx % s[2]
	idx /= s[2]
	y = idx % s[1]
	z = idx / s[1]
	return z, y, x
}

// Contains reports whether (z, y, x) lies inside the shape
func (s Shape) Contains(z, y, x int) bool {
	return z >= 0 && z < s[0] && y >= 0 && y < s[1] && x >= 0 && x < s[2]
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s[0], s[1], s[2])
}

// Range is a half-open integer interval [Start, Stop) along one axis.
type Range struct {
	Start int
	Stop  int
}

// Len returns the number of indices covered by the range
func (r Range) Len() int {
	if r.Stop < r.Start {
		return 0
	}
	return r.Stop - r.Start
}

// Clamp restricts both bounds of the range to [0, n].
func (r Range) Clamp(n int) Range {
	return Range{Start: clampInt(r.Start, 0, n), Stop: clampInt(r.Stop, 0, n)}
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.Stop)
}

// BoundingBox holds one half-open range per axis, in (Z, Y, X) order.
//
// A valid box for a volume of shape S satisfies 0 <= Start <= Stop <= S[i]
// on every axis. The absence of foreground is represented by a nil *BoundingBox,
// never by a zero-valued box.
type BoundingBox [3]Range

// FullBox returns the box covering the whole of shape s
func FullBox(s Shape) BoundingBox {
	return BoundingBox{{0, s[0]}, {0, s[1]}, {0, s[2]}}
}

// Shape returns the extent of the region the box selects
func (b BoundingBox) Shape() Shape {
	return Shape{b[0].Len(), b[1].Len(), b[2].Len()}
}

// Empty reports whether the box selects no voxels
func (b BoundingBox) Empty() bool {
	return b.Shape().Len() == 0
}

// ValidFor reports whether the box is a legal sub-slice of shape s.
func (b BoundingBox) ValidFor(s Shape) bool {
	for i, r := range b {
		if r.Start < 0 || r.Start > r.Stop || r.Stop > s[i] {
			return false
		}
	}
	return true
}

// Clamp restricts every axis of the box into [0, s[axis]].
func (b BoundingBox) Clamp(s Shape) BoundingBox {
	return BoundingBox{b[0].Clamp(s[0]), b[1].Clamp(s[1]), b[2].Clamp(s[2])}
}

// Center returns the integer centre voxel of the box
func (b BoundingBox) Center() (z, y, x int) {
	return (b[0].Start + b[0].Stop) / 2, (b[1].Start + b[1].Stop) / 2, (b[2].Start + b[2].Stop) / 2
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("z%s y%s x%s", b[0], b[1], b[2])
}

// CropMetadata is the record bridging the crop and paste stages.
// Pasting a crop of shape BBox.Shape() into a reference volume of
// shape OrigShape at BBox restores the original placement.
type CropMetadata struct {
	// Case is the case token of the source image. Informational only.
	Case string

	// BBox is the clamped, padded region that was cropped
	BBox BoundingBox

	// OrigShape is the shape of the full-field source volume
	OrigShape Shape
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
