// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// gzip-compressed .nii.gz) as models.Volume values.
//
// Arrays are exposed in row-major (Z, Y, X) order where axis 0 is the
// first NIfTI dimension. On disk the first dimension varies fastest, so
// the codec transposes while decoding and encoding.
package nifti

import (
	"errors"
	"fmt"
	"strings"

	"roikit/internal/models"
)

const (
	headerSize = 348
	dataOffset = 352
)

var (
	// ErrNotNIfTI is returned when the bytes do not carry a NIfTI-1 header
	ErrNotNIfTI = errors.New("not a NIfTI-1 file")

	// ErrUnsupportedDatatype is returned for datatypes the codec cannot map
	ErrUnsupportedDatatype = errors.New("unsupported NIfTI datatype")
)

// rawHeader mirrors the 348-byte NIfTI-1 header layout field by field.
// Fields must stay exported for encoding/binary.
type rawHeader struct {
	SizeofHdr     int32
	DataType      [10]byte
	DbName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

type datatypeInfo struct {
	code  int16
	bytes int
}

var datatypeCodes = map[models.Datatype]datatypeInfo{
	models.Uint8:   {2, 1},
	models.Int16:   {4, 2},
	models.Int32:   {8, 4},
	models.Float32: {16, 4},
	models.Float64: {64, 8},
	models.Int8:    {256, 1},
	models.Uint16:  {512, 2},
	models.Uint32:  {768, 4},
	models.Int64:   {1024, 8},
	models.Uint64:  {1280, 8},
}

func datatypeFromCode(code int16) (models.Datatype, int, error) {
	for dt, info := range datatypeCodes {
		if info.code == code {
			return dt, info.bytes, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: code %d", ErrUnsupportedDatatype, code)
}

// toHeader converts the raw header into the model header
func (h *rawHeader) toHeader() (*models.Header, error) {
	dt, _, err := datatypeFromCode(h.Datatype)
	if err != nil {
		return nil, err
	}

	out := &models.Header{
		Datatype:    dt,
		Spacing:     [3]float64{float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3])},
		SformCode:   h.SformCode,
		QformCode:   h.QformCode,
		Quatern:     [3]float64{float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)},
		QOffset:     [3]float64{float64(h.QoffsetX), float64(h.QoffsetY), float64(h.QoffsetZ)},
		QFac:        float64(h.Pixdim[0]),
		SclSlope:    float64(h.SclSlope),
		SclInter:    float64(h.SclInter),
		XYZTUnits:   h.XyztUnits,
		Description: cString(h.Descrip[:]),
	}
	if out.QFac != -1 {
		out.QFac = 1
	}
	out.Affine = affineFromRaw(h, out)
	return out, nil
}

// fromHeader fills the raw header for a volume of the given shape
func fromHeader(hdr *models.Header, shape models.Shape) (*rawHeader, error) {
	info, ok := datatypeCodes[hdr.Datatype]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatatype, hdr.Datatype)
	}

	raw := &rawHeader{
		SizeofHdr:  headerSize,
		Regular:    'r',
		Dim:        [8]int16{3, int16(shape[0]), int16(shape[1]), int16(shape[2]), 1, 1, 1, 1},
		Datatype:   info.code,
		Bitpix:     int16(info.bytes * 8),
		VoxOffset:  dataOffset,
		SclSlope:   float32(hdr.SclSlope),
		SclInter:   float32(hdr.SclInter),
		XyztUnits:  hdr.XYZTUnits,
		QformCode:  hdr.QformCode,
		SformCode:  hdr.SformCode,
		QuaternB:   float32(hdr.Quatern[0]),
		QuaternC:   float32(hdr.Quatern[1]),
		QuaternD:   float32(hdr.Quatern[2]),
		QoffsetX:   float32(hdr.QOffset[0]),
		QoffsetY:   float32(hdr.QOffset[1]),
		QoffsetZ:   float32(hdr.QOffset[2]),
		Magic:      [4]byte{'n', '+', '1', 0},
	}

	qfac := hdr.QFac
	if qfac != -1 {
		qfac = 1
	}
	raw.Pixdim = [8]float32{
		float32(qfac),
		float32(hdr.Spacing[0]), float32(hdr.Spacing[1]), float32(hdr.Spacing[2]),
		1, 1, 1, 1,
	}
	copy(raw.Descrip[:len(raw.Descrip)-1], hdr.Description)

	if hdr.Affine != nil {
		for c := 0; c < 4; c++ {
			raw.SrowX[c] = float32(hdr.Affine.At(0, c))
			raw.SrowY[c] = float32(hdr.Affine.At(1, c))
			raw.SrowZ[c] = float32(hdr.Affine.At(2, c))
		}
	}
	return raw, nil
}

func cString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
