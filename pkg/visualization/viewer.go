// Package visualization renders labelmap slices to images for quick
// visual QC of pasted and post-processed results.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"roikit/internal/models"
	"roikit/pkg/roi"
)

// overlayAlpha is the weight of label colour over the background intensity
const overlayAlpha = 0.5

// Viewer renders slices of a labelmap, optionally over an intensity volume
type Viewer struct {
	labels *models.Volume

	// background is the intensity volume under the labels, if any
	background *models.Volume
	lo, hi     float64

	// focus is the label the preview slice is centred on; 0 means any label
	focus uint8
}

// NewViewer creates a viewer for a labelmap
func NewViewer(labels *models.Volume) *Viewer {
	return &Viewer{labels: labels}
}

// WithBackground draws labels over img, which must share the labelmap shape.
// Intensities are windowed to the volume's own min and max.
func (v *Viewer) WithBackground(img *models.Volume) (*Viewer, error) {
	if img.Shape != v.labels.Shape {
		return nil, fmt.Errorf("background shape %s differs from labelmap shape %s", img.Shape, v.labels.Shape)
	}
	v.background = img
	v.lo, v.hi = math.Inf(1), math.Inf(-1)
	for i := range img.Data {
		val := img.Scaled(i)
		v.lo = math.Min(v.lo, val)
		v.hi = math.Max(v.hi, val)
	}
	return v, nil
}

// WithFocus centres previews on the bounding box of label
func (v *Viewer) WithFocus(label uint8) *Viewer {
	v.focus = label
	return v
}

// LabelColor returns the display colour of a label. Background is black;
// other labels walk the hue circle by the golden angle.
func LabelColor(label uint8) colorful.Color {
	if label == models.Background {
		return colorful.Color{}
	}
	hue := math.Mod(float64(label-1)*137.508, 360)
	return colorful.Hsv(hue, 0.85, 1)
}

// ExtractSlice extracts a 2D slice perpendicular to the given array axis
// (0, 1 or 2) at position.
func (v *Viewer) ExtractSlice(axis, position int) (image.Image, error) {
	s := v.labels.Shape
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("invalid axis: %d (must be 0, 1 or 2)", axis)
	}
	if position < 0 || position >= s[axis] {
		return nil, fmt.Errorf("position %d outside axis %d of length %d", position, axis, s[axis])
	}

	// the two remaining axes become image rows and columns
	rowAxis, colAxis := (axis+1)%3, (axis+2)%3
	if rowAxis > colAxis {
		rowAxis, colAxis = colAxis, rowAxis
	}

	img := image.NewRGBA(image.Rect(0, 0, s[colAxis], s[rowAxis]))
	var c [3]int
	c[axis] = position
	for r := 0; r < s[rowAxis]; r++ {
		for col := 0; col < s[colAxis]; col++ {
			c[rowAxis], c[colAxis] = r, col
			img.Set(col, r, v.pixel(s.Index(c[0], c[1], c[2])))
		}
	}
	return img, nil
}

func (v *Viewer) pixel(idx int) color.Color {
	label := uint8(v.labels.Data[idx])
	if v.background == nil {
		return LabelColor(label).Clamped()
	}

	g := 0.0
	if v.hi > v.lo {
		g = (v.background.Scaled(idx) - v.lo) / (v.hi - v.lo)
	}
	base := colorful.Color{R: g, G: g, B: g}
	if label == models.Background {
		return base
	}
	return base.BlendRgb(LabelColor(label), overlayAlpha).Clamped()
}

// SaveSlice upscales img by scale with nearest-neighbour sampling, so label
// edges stay sharp, and saves it. The format follows the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string, scale int) error {
	if scale > 1 {
		b := img.Bounds()
		img = imaging.Resize(img, b.Dx()*scale, b.Dy()*scale, imaging.NearestNeighbor)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return imaging.Save(img, filename)
}

// PreviewPosition picks the slice along axis through the centre of the
// focus label's box. Without a focus label, or when it is absent, any
// label counts; an unlabelled volume gives the middle slice.
func (v *Viewer) PreviewPosition(axis int) int {
	var box *models.BoundingBox
	ok := false
	if v.focus != models.Background {
		box, ok = roi.BoundingBoxOf(v.labels.LabelMask(v.focus))
	}
	if !ok {
		box, ok = roi.BoundingBoxOf(v.labels.Threshold(0))
	}
	if !ok {
		return v.labels.Shape[axis] / 2
	}
	z, y, x := box.Center()
	return [3]int{z, y, x}[axis]
}

// SavePreview writes the centre slice along axis to filename
func (v *Viewer) SavePreview(filename string, axis, scale int) error {
	img, err := v.ExtractSlice(axis, v.PreviewPosition(axis))
	if err != nil {
		return err
	}
	return v.SaveSlice(img, filename, scale)
}
