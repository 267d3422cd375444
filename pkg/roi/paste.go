package roi

import (
	"fmt"
	"math"

	"roikit/internal/models"
)

// PasteReport records how the stored crop geometry had to be reconciled
// with the reference volume during paste-back.
type PasteReport struct {
	// Placed is the region of the output that received prediction values
	Placed models.BoundingBox

	// ShapeMismatch is set when the recorded original shape differs from
	// the reference volume's shape
	ShapeMismatch bool

	// Clamped is set when the recorded box had to be clamped into the reference
	Clamped bool

	// Clipped is set when the prediction was smaller than the clamped box
	Clipped bool
}

// Adjusted reports whether the paste deviated from the recorded geometry
func (r PasteReport) Adjusted() bool {
	return r.ShapeMismatch || r.Clamped || r.Clipped
}

// Warnings describes each adjustment for operator review
func (r PasteReport) Warnings(meta models.CropMetadata, ref, pred models.Shape) []string {
	var out []string
	if r.ShapeMismatch {
		out = append(out, fmt.Sprintf("recorded shape %s differs from reference shape %s", meta.OrigShape, ref))
	}
	if r.Clamped {
		out = append(out, fmt.Sprintf("box %s clamped to reference bounds", meta.BBox))
	}
	if r.Clipped {
		out = append(out, fmt.Sprintf("prediction %s smaller than box, placed %s", pred, r.Placed))
	}
	return out
}

// Paste builds a full-field uint8 labelmap of the reference volume's shape,
// background everywhere except the recorded box, which receives the
// prediction. The output header is a copy of the reference header: the
// reference, not the crop or the metadata, is the geometric source of truth.
func Paste(pred *models.Volume, meta models.CropMetadata, ref *models.Volume) (*models.Volume, PasteReport) {
	report := PasteReport{ShapeMismatch: meta.OrigShape != ref.Shape}

	box := meta.BBox.Clamp(ref.Shape)
	report.Clamped = box != meta.BBox

	var n models.Shape
	for i := range n {
		n[i] = box[i].Len()
		if pred.Shape[i] < n[i] {
			n[i] = pred.Shape[i]
			report.Clipped = true
		}
		box[i].Stop = box[i].Start + n[i]
	}
	report.Placed = box

	out := models.NewVolume(ref.Shape, labelHeader(ref.Header))
	for z := 0; z < n[0]; z++ {
		for y := 0; y < n[1]; y++ {
			s := pred.Shape.Index(z, y, 0)
			d := ref.Shape.Index(box[0].Start+z, box[1].Start+y, box[2].Start)
			for x := 0; x < n[2]; x++ {
				out.Data[d+x] = toLabel(pred.Scaled(s + x))
			}
		}
	}
	return out, report
}

// labelHeader derives an unscaled uint8 header from a reference header
func labelHeader(ref *models.Header) *models.Header {
	hdr := ref.Clone()
	if hdr == nil {
		hdr = &models.Header{QFac: 1}
	}
	if hdr.Affine == nil {
		hdr.Affine = models.IdentityAffine(hdr.Spacing)
	}
	hdr.Datatype = models.Uint8
	hdr.SclSlope = 0
	hdr.SclInter = 0
	return hdr
}

// toLabel truncates toward zero, so 1.6 becomes label 1, and clamps to uint8
func toLabel(v float64) float64 {
	return math.Max(0, math.Min(255, math.Trunc(v)))
}
