// Package anatomy cleans a full-field labelmap: it removes small
// components per class and suppresses lesion voxels that are not inside
// the organ, then recomposes the classes into one labelmap.
package anatomy

import (
	"fmt"

	"roikit/internal/models"
	"roikit/pkg/components"
)

// Strategy names a containment policy for child classes
type Strategy string

const (
	// Voxel keeps a child voxel only where the parent voxel is set
	Voxel Strategy = "voxel"

	// Overlap keeps a whole child component when at least MinOverlapRatio
	// of its voxels fall inside the dilated organ, and drops it otherwise
	Overlap Strategy = "overlap"
)

// ParseStrategy maps a strategy name to its value
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(name); s {
	case Voxel, Overlap:
		return s, nil
	}
	return "", fmt.Errorf("unknown containment strategy %q (want %q or %q)", name, Voxel, Overlap)
}

// Config holds the class taxonomy and the containment settings
type Config struct {
	Taxonomy models.LabelTaxonomy

	Strategy        Strategy
	DilationRadius  int
	MinOverlapRatio float64
	Connectivity    components.Connectivity

	// Hierarchical measures the organ together with the lesions it holds:
	// components of organ ∪ lesions are kept when they carry at least the
	// organ's MinVoxels of organ voxels, and a lesion voxel is inside the
	// organ when it lies in such a component. When false the organ label is
	// filtered alone and is the only parent region. The overlap strategy
	// always measures against the dilated organ label.
	Hierarchical bool
}

// DefaultConfig returns the voxel strategy over the default taxonomy
func DefaultConfig() Config {
	return Config{
		Taxonomy:        models.DefaultTaxonomy(),
		Strategy:        Voxel,
		DilationRadius:  2,
		MinOverlapRatio: 0.10,
		Connectivity:    components.DefaultConnectivity,
		Hierarchical:    true,
	}
}

// Validate checks the configuration before any volume is touched
func (c Config) Validate() error {
	if err := c.Taxonomy.Validate(); err != nil {
		return err
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if err := c.Connectivity.Validate(); err != nil {
		return err
	}
	if c.DilationRadius < 0 {
		return fmt.Errorf("dilation radius must be non-negative, got %d", c.DilationRadius)
	}
	if c.MinOverlapRatio < 0 || c.MinOverlapRatio > 1 {
		return fmt.Errorf("minimum overlap ratio must be in [0, 1], got %g", c.MinOverlapRatio)
	}
	return nil
}

// ClassReport describes what happened to one class
type ClassReport struct {
	Name string
	ID   uint8

	// Input is the voxel count of the class before any processing
	Input int

	// Components is the result of small component removal
	Components components.Stats

	// OutsideParent is the number of voxels dropped by containment
	OutsideParent int

	// ComponentsDropped counts whole components dropped by the overlap strategy
	ComponentsDropped int

	// Final is the voxel count carrying this class in the output
	Final int
}

// Report lists one ClassReport per class, organ first
type Report struct {
	Strategy Strategy
	Classes  []ClassReport
}

// Class returns the report for a label ID
func (r Report) Class(id uint8) (ClassReport, bool) {
	for _, c := range r.Classes {
		if c.ID == id {
			return c, true
		}
	}
	return ClassReport{}, false
}

// Engine applies size filtering and containment to labelmaps
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an engine using it
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid anatomy config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Apply returns the cleaned labelmap. Labels outside the taxonomy are
// dropped to background. The output shares the input's geometry.
func (e *Engine) Apply(labelmap *models.Volume) (*models.Volume, Report) {
	tax := e.cfg.Taxonomy
	report := Report{Strategy: e.cfg.Strategy}

	organ := labelmap.LabelMask(tax.Organ.ID)
	organReport := ClassReport{Name: tax.Organ.Name, ID: tax.Organ.ID, Input: organ.Count()}

	lesions := make([]*models.Mask, len(tax.Lesions))
	for i, c := range tax.Lesions {
		lesions[i] = labelmap.LabelMask(c.ID)
	}

	var parent *models.Mask
	if e.cfg.Hierarchical {
		parent, organReport.Components = components.RemoveUnanchored(
			union(organ, lesions...), organ, tax.Organ.MinVoxels, e.cfg.Connectivity)
		organ = intersect(organ, parent)
	} else {
		organ, organReport.Components = components.RemoveSmall(organ, tax.Organ.MinVoxels, e.cfg.Connectivity)
		parent = organ
	}

	var dilated *models.Mask
	if e.cfg.Strategy == Overlap {
		dilated = components.Dilate(organ, e.cfg.DilationRadius)
	}

	lesionReports := make([]ClassReport, len(tax.Lesions))
	for i, c := range tax.Lesions {
		r := ClassReport{Name: c.Name, ID: c.ID, Input: lesions[i].Count()}

		var m *models.Mask
		m, r.Components = components.RemoveSmall(lesions[i], c.MinVoxels, e.cfg.Connectivity)
		before := m.Count()

		switch e.cfg.Strategy {
		case Overlap:
			m, r.ComponentsDropped = EnforceOverlap(m, dilated, e.cfg.MinOverlapRatio, e.cfg.Connectivity)
		default:
			m = EnforceVoxel(m, parent)
		}
		r.OutsideParent = before - m.Count()

		lesions[i] = m
		lesionReports[i] = r
	}

	out := models.NewVolume(labelmap.Shape, labelHeader(labelmap.Header))
	paint(out, organ, tax.Organ.ID)
	for i, c := range tax.Lesions {
		paint(out, lesions[i], c.ID)
	}

	report.Classes = append([]ClassReport{organReport}, lesionReports...)
	for i := range report.Classes {
		want := float64(report.Classes[i].ID)
		for _, v := range out.Data {
			if v == want {
				report.Classes[i].Final++
			}
		}
	}
	return out, report
}

// EnforceVoxel keeps only child voxels whose parent voxel is set
func EnforceVoxel(child, parent *models.Mask) *models.Mask {
	return intersect(child, parent)
}

// EnforceOverlap keeps every child component with at least minRatio of its
// voxels inside parent, and drops the rest whole. parent is expected to be
// dilated already. dropped counts the removed components.
func EnforceOverlap(child, parent *models.Mask, minRatio float64, conn components.Connectivity) (*models.Mask, int) {
	if !child.Any() {
		return child.Clone(), 0
	}
	l := components.Label(child, conn)
	inside := l.Overlap(parent)

	dropped := 0
	keep := make([]bool, len(l.Sizes))
	for lab := 1; lab < len(l.Sizes); lab++ {
		ratio := float64(inside[lab]) / float64(l.Sizes[lab])
		keep[lab] = ratio >= minRatio
		if !keep[lab] {
			dropped++
		}
	}
	return l.Select(func(label int32) bool { return keep[label] }), dropped
}

func union(m *models.Mask, others ...*models.Mask) *models.Mask {
	out := m.Clone()
	for _, o := range others {
		for i, v := range o.Data {
			if v {
				out.Data[i] = true
			}
		}
	}
	return out
}

func intersect(a, b *models.Mask) *models.Mask {
	out := models.NewMask(a.Shape)
	for i := range out.Data {
		out.Data[i] = a.Data[i] && b.Data[i]
	}
	return out
}

// paint writes label wherever m is set; later calls win
func paint(vol *models.Volume, m *models.Mask, label uint8) {
	v := float64(label)
	for i, set := range m.Data {
		if set {
			vol.Data[i] = v
		}
	}
}

func labelHeader(h *models.Header) *models.Header {
	out := h.Clone()
	if out == nil {
		return nil
	}
	out.Datatype = models.Uint8
	out.SclSlope = 0
	out.SclInter = 0
	return out
}
