package components

import (
	"gonum.org/v1/gonum/stat"

	"roikit/internal/models"
)

// Stats summarises one RemoveSmall call
type Stats struct {
	Components    int
	Kept          int
	Removed       int
	VoxelsRemoved int
	Largest       int
	MeanSize      float64
}

// RemoveSmall drops every connected component of mask with fewer than
// minVoxels voxels. Components are kept or dropped whole. An empty mask
// is returned unchanged.
func RemoveSmall(mask *models.Mask, minVoxels int, conn Connectivity) (*models.Mask, Stats) {
	if !mask.Any() {
		return mask.Clone(), Stats{}
	}
	l := Label(mask, conn)
	return filterComponents(l, l.Sizes, minVoxels)
}

// RemoveUnanchored drops every connected component of region holding fewer
// than minAnchor voxels of anchor. A component without any anchor voxel is
// always dropped. Sizes in the returned Stats count anchor voxels only.
func RemoveUnanchored(region, anchor *models.Mask, minAnchor int, conn Connectivity) (*models.Mask, Stats) {
	if !region.Any() {
		return region.Clone(), Stats{}
	}
	l := Label(region, conn)
	return filterComponents(l, l.Overlap(anchor), max(minAnchor, 1))
}

// filterComponents keeps the components whose weight reaches threshold
func filterComponents(l *Labeling, weights []int, threshold int) (*models.Mask, Stats) {
	st := Stats{Components: l.Count()}

	sizes := make([]float64, 0, l.Count())
	for _, n := range weights[1:] {
		sizes = append(sizes, float64(n))
		if n > st.Largest {
			st.Largest = n
		}
		if n < threshold {
			st.Removed++
			st.VoxelsRemoved += n
		} else {
			st.Kept++
		}
	}
	st.MeanSize = stat.Mean(sizes, nil)

	out := l.Select(func(label int32) bool {
		return weights[label] >= threshold
	})
	return out, st
}

// Dilate grows mask by radius voxels along every axis using a cubic
// structuring element of side 2*radius+1. The cube is separable, so the
// dilation runs as three one-dimensional passes.
func Dilate(mask *models.Mask, radius int) *models.Mask {
	out := mask.Clone()
	if radius <= 0 || !mask.Any() {
		return out
	}

	s := mask.Shape
	strides := [3]int{s[1] * s[2], s[2], 1}
	for axis := 0; axis < 3; axis++ {
		n := s[axis]
		line := make([]bool, n)
		prefix := make([]int, n+1)

		for start := range out.Data {
			// visit each line once, from its first voxel
			if (start/strides[axis])%n != 0 {
				continue
			}
			for i := 0; i < n; i++ {
				line[i] = out.Data[start+i*strides[axis]]
				prefix[i+1] = prefix[i]
				if line[i] {
					prefix[i+1]++
				}
			}
			if prefix[n] == 0 {
				continue
			}
			for i := 0; i < n; i++ {
				lo := max(0, i-radius)
				hi := min(n, i+radius+1)
				out.Data[start+i*strides[axis]] = prefix[hi]-prefix[lo] > 0
			}
		}
	}
	return out
}
