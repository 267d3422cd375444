// Package components labels connected regions of binary volumes and
// filters them by size.
package components

import (
	"fmt"

	"roikit/internal/models"
)

// Connectivity is the number of neighbours a voxel is adjacent to:
// 6 (faces), 18 (faces and edges) or 26 (faces, edges and corners).
type Connectivity int

const (
	Face   Connectivity = 6
	Edge   Connectivity = 18
	Vertex Connectivity = 26
)

// DefaultConnectivity is full 3-D adjacency
const DefaultConnectivity = Vertex

// Validate rejects anything other than 6, 18 or 26
func (c Connectivity) Validate() error {
	switch c {
	case Face, Edge, Vertex:
		return nil
	}
	return fmt.Errorf("unsupported connectivity %d (want 6, 18 or 26)", int(c))
}

// offsets lists the neighbour displacements for c. Unknown values fall
// back to full adjacency.
func (c Connectivity) offsets() [][3]int {
	var out [][3]int
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				n := abs(dz) + abs(dy) + abs(dx)
				if n == 0 {
					continue
				}
				if (c == Face && n > 1) || (c == Edge && n > 2) {
					continue
				}
				out = append(out, [3]int{dz, dy, dx})
			}
		}
	}
	return out
}

// Labeling assigns every set voxel of a mask to a component.
// Labels are numbered from 1 in scan order; 0 is background.
type Labeling struct {
	Shape  models.Shape
	Labels []int32

	// Sizes[l] is the voxel count of component l; Sizes[0] is unused
	Sizes []int
}

// Count returns the number of components
func (l *Labeling) Count() int {
	return len(l.Sizes) - 1
}

// Select returns the mask of voxels whose component satisfies keep
func (l *Labeling) Select(keep func(label int32) bool) *models.Mask {
	out := models.NewMask(l.Shape)
	decided := make([]int8, len(l.Sizes))
	for i, lab := range l.Labels {
		if lab == 0 {
			continue
		}
		if decided[lab] == 0 {
			decided[lab] = -1
			if keep(lab) {
				decided[lab] = 1
			}
		}
		out.Data[i] = decided[lab] == 1
	}
	return out
}

// Overlap counts, per component, the voxels that are also set in ref
func (l *Labeling) Overlap(ref *models.Mask) []int {
	out := make([]int, len(l.Sizes))
	for i, lab := range l.Labels {
		if lab != 0 && ref.Data[i] {
			out[lab]++
		}
	}
	return out
}

// Label finds the connected components of mask with an iterative flood fill
func Label(mask *models.Mask, conn Connectivity) *Labeling {
	s := mask.Shape
	l := &Labeling{
		Shape:  s,
		Labels: make([]int32, len(mask.Data)),
		Sizes:  []int{0},
	}
	offs := conn.offsets()
	var queue []int

	for seed, set := range mask.Data {
		if !set || l.Labels[seed] != 0 {
			continue
		}
		label := int32(len(l.Sizes))
		l.Labels[seed] = label
		size := 0

		queue = append(queue[:0], seed)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++

			z, y, x := s.Coords(idx)
			for _, d := range offs {
				nz, ny, nx := z+d[0], y+d[1], x+d[2]
				if !s.Contains(nz, ny, nx) {
					continue
				}
				n := s.Index(nz, ny, nx)
				if mask.Data[n] && l.Labels[n] == 0 {
					l.Labels[n] = label
					queue = append(queue, n)
				}
			}
		}
		l.Sizes = append(l.Sizes, size)
	}
	return l
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
