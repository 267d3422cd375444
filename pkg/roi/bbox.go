// Package roi extracts a padded region of interest from a volume and
// places a result computed on that region back into full-field coordinates.
//
// All boxes are half-open per axis and expressed in (Z, Y, X) voxel
// indices of the source volume.
package roi

import (
	"roikit/internal/models"
)

// BoundingBoxOf returns the minimal box enclosing every set voxel of the
// mask. It returns nil, false when the mask is empty.
func BoundingBoxOf(mask *models.Mask) (*models.BoundingBox, bool) {
	s := mask.Shape
	lo := [3]int{s[0], s[1], s[2]}
	hi := [3]int{-1, -1, -1}

	for z := 0; z < s[0]; z++ {
		for y := 0; y < s[1]; y++ {
			row := s.Index(z, y, 0)
			for x := 0; x < s[2]; x++ {
				if !mask.Data[row+x] {
					continue
				}
				c := [3]int{z, y, x}
				for i := range c {
					if c[i] < lo[i] {
						lo[i] = c[i]
					}
					if c[i] > hi[i] {
						hi[i] = c[i]
					}
				}
			}
		}
	}

	if hi[0] < 0 {
		return nil, false
	}
	box := models.BoundingBox{
		{Start: lo[0], Stop: hi[0] + 1},
		{Start: lo[1], Stop: hi[1] + 1},
		{Start: lo[2], Stop: hi[2] + 1},
	}
	return &box, true
}

// PadAndClamp grows the box by pad voxels on both sides of each axis and
// clamps the result to the volume, so the box is always a legal slice.
func PadAndClamp(box models.BoundingBox, shape models.Shape, pad [3]int) models.BoundingBox {
	var out models.BoundingBox
	for i, r := range box {
		p := pad[i]
		if p < 0 {
			p = 0
		}
		out[i] = models.Range{Start: r.Start - p, Stop: r.Stop + p}.Clamp(shape[i])
	}
	return out
}

// PlanCrop decides the crop region for a mask: the padded, clamped
// bounding box of its foreground, or the whole volume when the mask is
// empty. found reports which case applied.
func PlanCrop(mask *models.Mask, pad [3]int) (box models.BoundingBox, found bool) {
	b, ok := BoundingBoxOf(mask)
	if !ok {
		return models.FullBox(mask.Shape), false
	}
	return PadAndClamp(*b, mask.Shape, pad), true
}
