package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Datatype identifies how voxel values are stored on disk
type Datatype int

const (
	Uint8 Datatype = iota + 1
	Int8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

var datatypeNames = map[Datatype]string{
	Uint8:   "uint8",
	Int8:    "int8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

func (d Datatype) String() string {
	if name, ok := datatypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("datatype(%d)", int(d))
}

// IsInteger reports whether the datatype stores integer values
func (d Datatype) IsInteger() bool {
	return d != Float32 && d != Float64 && d != 0
}

// Header carries the geometry and storage description of a volume.
// It is copied verbatim from source to crop and from reference to
// paste-back output, so every field the file codec understands lives here.
type Header struct {
	// Datatype is the on-disk storage type of the voxel values
	Datatype Datatype

	// Spacing is the physical voxel size along each array axis
	Spacing [3]float64

	// Affine maps voxel indices (axis0, axis1, axis2, 1) to physical space.
	// It is always a 4x4 matrix.
	Affine *mat.Dense

	// SformCode and QformCode record which transforms the file declared
	SformCode int16
	QformCode int16

	// Quatern, QOffset and QFac describe the qform transform
	Quatern [3]float64
	QOffset [3]float64
	QFac    float64

	// SclSlope and SclInter scale stored values to real values.
	// A zero slope means no scaling.
	SclSlope float64
	SclInter float64

	XYZTUnits   uint8
	Description string
}

// Clone returns a deep copy of the header
func (h *Header) Clone() *Header {
	if h == nil {
		return nil
	}
	out := *h
	if h.Affine != nil {
		out.Affine = mat.DenseCopyOf(h.Affine)
	}
	return &out
}

// VoxelToWorld maps a voxel coordinate through the affine
func (h *Header) VoxelToWorld(i, j, k float64) [3]float64 {
	v := mat.NewVecDense(4, []float64{i, j, k, 1})
	var out mat.VecDense
	out.MulVec(h.Affine, v)
	return [3]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

// IdentityAffine returns a 4x4 affine scaling by spacing with zero origin
func IdentityAffine(spacing [3]float64) *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		s := spacing[i]
		if s == 0 {
			s = 1
		}
		a.Set(i, i, s)
	}
	a.Set(3, 3, 1)
	return a
}

// Volume is a 3-D array of stored voxel values with its header.
// Data is row-major over Shape; values are kept as stored (unscaled) so
// that a volume written with its own header round-trips exactly.
type Volume struct {
	Shape  Shape
	Data   []float64
	Header *Header
}

// NewVolume allocates a zero-filled volume of the given shape
func NewVolume(shape Shape, header *Header) *Volume {
	return &Volume{
		Shape:  shape,
		Data:   make([]float64, shape.Len()),
		Header: header,
	}
}

// At returns the stored value at (z, y, x)
func (v *Volume) At(z, y, x int) float64 {
	return v.Data[v.Shape.Index(z, y, x)]
}

// Set writes the stored value at (z, y, x)
func (v *Volume) Set(z, y, x int, val float64) {
	v.Data[v.Shape.Index(z, y, x)] = val
}

// Scaled returns the real value at flat index i, applying header scaling.
func (v *Volume) Scaled(i int) float64 {
	if v.Header == nil || v.Header.SclSlope == 0 {
		return v.Data[i]
	}
	return v.Data[i]*v.Header.SclSlope + v.Header.SclInter
}

// Threshold returns the mask of voxels whose scaled value exceeds t
func (v *Volume) Threshold(t float64) *Mask {
	m := NewMask(v.Shape)
	for i := range v.Data {
		m.Data[i] = v.Scaled(i) > t
	}
	return m
}

// LabelMask returns the mask of voxels equal to label
func (v *Volume) LabelMask(label uint8) *Mask {
	m := NewMask(v.Shape)
	want := float64(label)
	for i, val := range v.Data {
		m.Data[i] = val == want
	}
	return m
}

// Mask is a binary volume
type Mask struct {
	Shape Shape
	Data  []bool
}

// NewMask allocates an all-false mask
func NewMask(shape Shape) *Mask {
	return &Mask{Shape: shape, Data: make([]bool, shape.Len())}
}

// Count returns the number of set voxels
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Data {
		if b {
			n++
		}
	}
	return n
}

// Any reports whether at least one voxel is set
func (m *Mask) Any() bool {
	for _, b := range m.Data {
		if b {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the mask
func (m *Mask) Clone() *Mask {
	out := &Mask{Shape: m.Shape, Data: make([]bool, len(m.Data))}
	copy(out.Data, m.Data)
	return out
}
