package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"roikit/internal/models"
)

func testVolume(dt models.Datatype) *models.Volume {
	hdr := &models.Header{
		Datatype:  dt,
		Spacing:   [3]float64{3, 0.78125, 0.78125},
		SformCode: 1,
		QFac:      1,
		XYZTUnits: 2,
	}
	hdr.Affine = mat.NewDense(4, 4, []float64{
		0, 0, -3, 10,
		0, -0.78125, 0, 20,
		0.78125, 0, 0, -30,
		0, 0, 0, 1,
	})
	vol := models.NewVolume(models.Shape{4, 3, 5}, hdr)
	for i := range vol.Data {
		vol.Data[i] = float64(i % 7)
	}
	return vol
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		dt   models.Datatype
		file string
	}{
		{"uint8 plain", models.Uint8, "a.nii"},
		{"int16 gzip", models.Int16, "b.nii.gz"},
		{"float32 gzip", models.Float32, "c.nii.gz"},
		{"float64 plain", models.Float64, "d.nii"},
		{"uint16 plain", models.Uint16, "e.nii"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vol := testVolume(tt.dt)
			path := filepath.Join(dir, tt.file)
			require.NoError(t, Save(path, vol))

			got, err := Load(path)
			require.NoError(t, err)

			assert.Equal(t, vol.Shape, got.Shape)
			assert.Equal(t, vol.Data, got.Data)
			assert.Equal(t, tt.dt, got.Header.Datatype)
			assert.Equal(t, vol.Header.Spacing, got.Header.Spacing)
			assert.True(t, mat.EqualApprox(vol.Header.Affine, got.Header.Affine, 1e-6),
				"affine changed: %v", mat.Formatted(got.Header.Affine))
		})
	}
}

func TestDecodePreservesAxisOrder(t *testing.T) {
	vol := testVolume(models.Int32)
	vol.Data = make([]float64, vol.Shape.Len())
	vol.Set(3, 2, 4, 42)
	vol.Set(0, 1, 0, 7)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, vol))

	// axis 0 varies fastest on disk
	raw := buf.Bytes()[dataOffset:]
	s := vol.Shape
	diskIdx := 0 + 1*s[0] + 0*s[0]*s[1]
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(raw[diskIdx*4:]))

	got, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.At(3, 2, 4))
	assert.Equal(t, 7.0, got.At(0, 1, 0))
}

func TestDecodeBigEndian(t *testing.T) {
	raw := &rawHeader{
		SizeofHdr: headerSize,
		Dim:       [8]int16{3, 2, 2, 1, 1, 1, 1, 1},
		Datatype:  4,
		Bitpix:    16,
		Pixdim:    [8]float32{1, 2, 2, 2},
		VoxOffset: dataOffset,
		Magic:     [4]byte{'n', '+', '1', 0},
	}

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, raw))
	buf.Write([]byte{0, 0, 0, 0})
	for _, v := range []int16{1, -2, 300, 4} {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, v))
	}

	vol, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, models.Shape{2, 2, 1}, vol.Shape)
	assert.Equal(t, models.Int16, vol.Header.Datatype)
	// disk order (z fastest): (0,0) (1,0) (0,1) (1,1)
	assert.Equal(t, 1.0, vol.At(0, 0, 0))
	assert.Equal(t, -2.0, vol.At(1, 0, 0))
	assert.Equal(t, 300.0, vol.At(0, 1, 0))
	assert.Equal(t, 4.0, vol.At(1, 1, 0))

	// no sform or qform: diagonal spacing
	assert.Equal(t, 2.0, vol.Header.Affine.At(0, 0))
	assert.Equal(t, 0.0, vol.Header.Affine.At(0, 3))
}

func TestQformAffine(t *testing.T) {
	// identity rotation
	a := qformAffine([3]float64{0, 0, 0}, [3]float64{1, 2, 3}, [3]float64{2, 3, 4}, 1)
	assert.InDelta(t, 2.0, a.At(0, 0), 1e-9)
	assert.InDelta(t, 3.0, a.At(1, 1), 1e-9)
	assert.InDelta(t, 4.0, a.At(2, 2), 1e-9)
	assert.InDelta(t, 3.0, a.At(2, 3), 1e-9)

	// qfac flips the third axis
	a = qformAffine([3]float64{0, 0, 0}, [3]float64{}, [3]float64{1, 1, 2}, -1)
	assert.InDelta(t, -2.0, a.At(2, 2), 1e-9)

	// 180 degrees about z: b=c=0, d=1
	a = qformAffine([3]float64{0, 0, 1}, [3]float64{}, [3]float64{1, 1, 1}, 1)
	assert.InDelta(t, -1.0, a.At(0, 0), 1e-9)
	assert.InDelta(t, -1.0, a.At(1, 1), 1e-9)
	assert.InDelta(t, 1.0, a.At(2, 2), 1e-9)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte("short"))
	assert.True(t, errors.Is(err, ErrNotNIfTI))

	vol := testVolume(models.Uint8)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, vol))
	data := buf.Bytes()

	truncated := data[:len(data)-3]
	_, err = Decode(truncated)
	assert.Error(t, err)

	bad := append([]byte(nil), data...)
	copy(bad[344:], []byte{'n', 'i', '1', 0})
	_, err = Decode(bad)
	assert.True(t, errors.Is(err, ErrNotNIfTI))

	badType := append([]byte(nil), data...)
	binary.LittleEndian.PutUint16(badType[70:], 128) // RGB24
	_, err = Decode(badType)
	assert.True(t, errors.Is(err, ErrUnsupportedDatatype))
}

func TestEncodeClampsIntegerTypes(t *testing.T) {
	vol := testVolume(models.Uint8)
	vol.Data[0] = 300
	vol.Data[1] = -5
	vol.Data[2] = 2.6

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, vol))
	got, err := Decode(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, 255.0, got.Data[0])
	assert.Equal(t, 0.0, got.Data[1])
	assert.Equal(t, 3.0, got.Data[2])
}

func TestTrimExt(t *testing.T) {
	tests := map[string]string{
		"case_00001_0000.nii.gz": "case_00001_0000",
		"case_00001.nii":         "case_00001",
		"CASE.NII.GZ":            "CASE",
		"case.json":              "case.json",
	}
	for in, want := range tests {
		if got := TrimExt(in); got != want {
			t.Errorf("TrimExt(%q): expected %q, got %q", in, want, got)
		}
	}
	if IsVolumeFile("meta.json") {
		t.Error("meta.json should not be a volume file")
	}
}
