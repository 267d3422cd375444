package models

import "fmt"

// Background is the label of voxels that belong to no class
const Background uint8 = 0

// ClassSpec describes one semantic class of a labelmap
type ClassSpec struct {
	// Name is a human readable class name used in logs and reports
	Name string `yaml:"name"`

	// ID is the integer label written to the labelmap
	ID uint8 `yaml:"id"`

	// MinVoxels is the smallest connected component kept for the class
	MinVoxels int `yaml:"minVoxels"`
}

// LabelTaxonomy is the fixed class mapping of the pipeline.
// Lesion classes are children of the organ class and are composited
// after it, in order, so a later class wins on overlap.
type LabelTaxonomy struct {
	Organ   ClassSpec   `yaml:"organ"`
	Lesions []ClassSpec `yaml:"lesions"`
}

// DefaultTaxonomy returns organ=1, lesion-a=2, lesion-b=3 with the
// size thresholds used by the batch drivers.
func DefaultTaxonomy() LabelTaxonomy {
	return LabelTaxonomy{
		Organ: ClassSpec{Name: "organ", ID: 1, MinVoxels: 20000},
		Lesions: []ClassSpec{
			{Name: "lesion-a", ID: 2, MinVoxels: 200},
			{Name: "lesion-b", ID: 3, MinVoxels: 50},
		},
	}
}

// Classes returns the organ followed by the lesion classes in compositing order
func (t LabelTaxonomy) Classes() []ClassSpec {
	out := make([]ClassSpec, 0, 1+len(t.Lesions))
	out = append(out, t.Organ)
	return append(out, t.Lesions...)
}

// Validate checks that class IDs are non-zero and distinct.
func (t LabelTaxonomy) Validate() error {
	seen := make(map[uint8]string)
	for _, c := range t.Classes() {
		if c.ID == Background {
			return fmt.Errorf("class %q uses the background label 0", c.Name)
		}
		if other, ok := seen[c.ID]; ok {
			return fmt.Errorf("classes %q and %q share label %d", other, c.Name, c.ID)
		}
		if c.MinVoxels < 0 {
			return fmt.Errorf("class %q has negative minimum voxel count %d", c.Name, c.MinVoxels)
		}
		seen[c.ID] = c.Name
	}
	return nil
}
