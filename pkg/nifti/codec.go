package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"roikit/internal/models"
)

// Decode parses a complete single-file NIfTI-1 image.
func Decode(data []byte) (*models.Volume, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrNotNIfTI, len(data))
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(data[:4]) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(data[:4]) == headerSize:
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad header size field", ErrNotNIfTI)
	}

	var raw rawHeader
	if err := binary.Read(bytes.NewReader(data[:headerSize]), order, &raw); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if raw.Magic != [4]byte{'n', '+', '1', 0} {
		return nil, fmt.Errorf("%w: magic %q (only single-file n+1 images are supported)", ErrNotNIfTI, raw.Magic[:3])
	}

	shape, err := shapeFromDims(raw.Dim)
	if err != nil {
		return nil, err
	}

	hdr, err := raw.toHeader()
	if err != nil {
		return nil, err
	}
	_, width, _ := datatypeFromCode(raw.Datatype)

	offset := int(raw.VoxOffset)
	if offset < dataOffset {
		offset = dataOffset
	}
	need := offset + shape.Len()*width
	if len(data) < need {
		return nil, fmt.Errorf("truncated voxel data: have %d bytes, need %d", len(data), need)
	}

	vol := models.NewVolume(shape, hdr)
	decodeVoxels(data[offset:need], vol, order, width)
	return vol, nil
}

func shapeFromDims(dim [8]int16) (models.Shape, error) {
	n := int(dim[0])
	if n < 3 || n > 7 {
		return models.Shape{}, fmt.Errorf("expected a 3-D image, header declares %d dimensions", n)
	}
	for i := 4; i <= n; i++ {
		if dim[i] > 1 {
			return models.Shape{}, fmt.Errorf("expected a 3-D image, dimension %d has extent %d", i, dim[i])
		}
	}
	shape := models.Shape{int(dim[1]), int(dim[2]), int(dim[3])}
	for i, d := range shape {
		if d <= 0 {
			return models.Shape{}, fmt.Errorf("invalid extent %d on axis %d", d, i)
		}
	}
	return shape, nil
}

// decodeVoxels walks the on-disk order (axis 0 fastest) and stores each
// value at its row-major position.
func decodeVoxels(buf []byte, vol *models.Volume, order binary.ByteOrder, width int) {
	dt := vol.Header.Datatype
	s := vol.Shape
	pos := 0
	for x := 0; x < s[2]; x++ {
		for y := 0; y < s[1]; y++ {
			for z := 0; z < s[0]; z++ {
				vol.Data[s.Index(z, y, x)] = readValue(buf[pos:pos+width], dt, order)
				pos += width
			}
		}
	}
}

func readValue(b []byte, dt models.Datatype, order binary.ByteOrder) float64 {
	switch dt {
	case models.Uint8:
		return float64(b[0])
	case models.Int8:
		return float64(int8(b[0]))
	case models.Int16:
		return float64(int16(order.Uint16(b)))
	case models.Uint16:
		return float64(order.Uint16(b))
	case models.Int32:
		return float64(int32(order.Uint32(b)))
	case models.Uint32:
		return float64(order.Uint32(b))
	case models.Int64:
		return float64(int64(order.Uint64(b)))
	case models.Uint64:
		return float64(order.Uint64(b))
	case models.Float32:
		return float64(math.Float32frombits(order.Uint32(b)))
	case models.Float64:
		return math.Float64frombits(order.Uint64(b))
	}
	return 0
}

// Encode writes vol as a little-endian single-file NIfTI-1 image.
func Encode(w io.Writer, vol *models.Volume) error {
	if vol.Header == nil {
		return fmt.Errorf("volume has no header")
	}
	if len(vol.Data) != vol.Shape.Len() {
		return fmt.Errorf("data length %d does not match shape %s", len(vol.Data), vol.Shape)
	}
	for i, d := range vol.Shape {
		if d <= 0 || d > math.MaxInt16 {
			return fmt.Errorf("extent %d on axis %d cannot be stored", d, i)
		}
	}

	raw, err := fromHeader(vol.Header, vol.Shape)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, raw); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	// empty extension block
	if _, err := bw.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}

	width := datatypeCodes[vol.Header.Datatype].bytes
	buf := make([]byte, width)
	s := vol.Shape
	for x := 0; x < s[2]; x++ {
		for y := 0; y < s[1]; y++ {
			for z := 0; z < s[0]; z++ {
				putValue(buf, vol.Data[s.Index(z, y, x)], vol.Header.Datatype)
				if _, err := bw.Write(buf); err != nil {
					return fmt.Errorf("failed to write voxel data: %w", err)
				}
			}
		}
	}
	return bw.Flush()
}

func putValue(b []byte, v float64, dt models.Datatype) {
	le := binary.LittleEndian
	switch dt {
	case models.Uint8:
		b[0] = uint8(clampRound(v, 0, math.MaxUint8))
	case models.Int8:
		b[0] = byte(int8(clampRound(v, math.MinInt8, math.MaxInt8)))
	case models.Int16:
		le.PutUint16(b, uint16(int16(clampRound(v, math.MinInt16, math.MaxInt16))))
	case models.Uint16:
		le.PutUint16(b, uint16(clampRound(v, 0, math.MaxUint16)))
	case models.Int32:
		le.PutUint32(b, uint32(int32(clampRound(v, math.MinInt32, math.MaxInt32))))
	case models.Uint32:
		le.PutUint32(b, uint32(clampRound(v, 0, math.MaxUint32)))
	case models.Int64:
		le.PutUint64(b, uint64(int64(math.Round(v))))
	case models.Uint64:
		le.PutUint64(b, uint64(math.Max(0, math.Round(v))))
	case models.Float32:
		le.PutUint32(b, math.Float32bits(float32(v)))
	case models.Float64:
		le.PutUint64(b, math.Float64bits(v))
	}
}

func clampRound(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, math.Round(v)))
}
