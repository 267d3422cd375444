package roi

import (
	"errors"
	"fmt"

	"roikit/internal/models"
)

// ErrShapeMismatch is returned when an image and its mask disagree in shape.
var ErrShapeMismatch = errors.New("image and mask shapes differ")

// CropOptions controls how a region of interest is cut from an image
type CropOptions struct {
	// Padding is the margin in voxels added on both sides of each axis
	Padding [3]int

	// ShiftOrigin moves the crop affine so that crop voxel (0,0,0) maps to
	// the physical position of the box start. When false the source
	// affine is kept unchanged.
	ShiftOrigin bool
}

// CropResult is the outcome of cropping one image to its mask
type CropResult struct {
	Volume   *models.Volume
	Metadata models.CropMetadata

	// Foreground is false when the mask was empty and the whole volume was kept
	Foreground bool
}

// Crop copies the region selected by box out of vol. The crop keeps the
// source datatype and a copy of the source header.
func Crop(vol *models.Volume, box models.BoundingBox) (*models.Volume, error) {
	if !box.ValidFor(vol.Shape) {
		return nil, fmt.Errorf("box %s is outside volume of shape %s", box, vol.Shape)
	}

	out := models.NewVolume(box.Shape(), vol.Header.Clone())
	copyRegion(vol.Data, vol.Shape, box, out.Data, out.Shape, out.Shape)
	return out, nil
}

// CropToMask crops img to the padded bounding box of mask. An empty mask
// falls back to the whole volume. The returned metadata inverts the crop.
func CropToMask(img *models.Volume, mask *models.Mask, opts CropOptions) (*CropResult, error) {
	if img.Shape != mask.Shape {
		return nil, fmt.Errorf("%w: image %s vs mask %s", ErrShapeMismatch, img.Shape, mask.Shape)
	}

	box, found := PlanCrop(mask, opts.Padding)
	cropped, err := Crop(img, box)
	if err != nil {
		return nil, err
	}
	if opts.ShiftOrigin {
		shiftOrigin(cropped.Header, box)
	}

	return &CropResult{
		Volume:     cropped,
		Metadata:   models.CropMetadata{BBox: box, OrigShape: img.Shape},
		Foreground: found,
	}, nil
}

// shiftOrigin translates the header affine to the start of box
func shiftOrigin(hdr *models.Header, box models.BoundingBox) {
	if hdr == nil || hdr.Affine == nil {
		return
	}
	origin := hdr.VoxelToWorld(float64(box[0].Start), float64(box[1].Start), float64(box[2].Start))
	for i := 0; i < 3; i++ {
		hdr.Affine.Set(i, 3, origin[i])
	}
	if hdr.SformCode == 0 {
		hdr.SformCode = 2
	}
	if hdr.QformCode > 0 {
		hdr.QOffset = origin
	}
}

// copyRegion copies a (Z, Y, X) block of extent n from src at box start into
// dst at its origin, one contiguous x-row at a time.
func copyRegion(src []float64, srcShape models.Shape, box models.BoundingBox, dst []float64, dstShape, n models.Shape) {
	for z := 0; z < n[0]; z++ {
		for y := 0; y < n[1]; y++ {
			s := srcShape.Index(box[0].Start+z, box[1].Start+y, box[2].Start)
			d := dstShape.Index(z, y, 0)
			copy(dst[d:d+n[2]], src[s:s+n[2]])
		}
	}
}
