package nifti

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"roikit/internal/models"
)

// affineFromRaw derives the voxel-to-world transform the way NIfTI readers
// do: sform when declared, then qform, then a spacing-only diagonal.
func affineFromRaw(raw *rawHeader, hdr *models.Header) *mat.Dense {
	switch {
	case raw.SformCode > 0:
		a := mat.NewDense(4, 4, nil)
		for c := 0; c < 4; c++ {
			a.Set(0, c, float64(raw.SrowX[c]))
			a.Set(1, c, float64(raw.SrowY[c]))
			a.Set(2, c, float64(raw.SrowZ[c]))
		}
		a.Set(3, 3, 1)
		return a
	case raw.QformCode > 0:
		return qformAffine(hdr.Quatern, hdr.QOffset, hdr.Spacing, hdr.QFac)
	default:
		return models.IdentityAffine(hdr.Spacing)
	}
}

// qformAffine builds the affine from the qform quaternion (b, c, d),
// offsets, voxel spacing and the qfac sign of the third axis.
func qformAffine(q, offset, spacing [3]float64, qfac float64) *mat.Dense {
	b, c, d := q[0], q[1], q[2]
	aa := 1 - (b*b + c*c + d*d)
	var a float64
	if aa < 1e-7 {
		// 180 degree rotation: renormalise b, c, d
		n := math.Sqrt(b*b + c*c + d*d)
		if n > 0 {
			b, c, d = b/n, c/n, d/n
		}
	} else {
		a = math.Sqrt(aa)
	}

	r := mat.NewDense(3, 3, []float64{
		a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c),
		2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b),
		2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b,
	})

	zooms := spacing
	for i := range zooms {
		if zooms[i] <= 0 {
			zooms[i] = 1
		}
	}
	if qfac < 0 {
		zooms[2] = -zooms[2]
	}

	var rz mat.Dense
	rz.Mul(r, mat.NewDiagDense(3, zooms[:]))

	out := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, rz.At(i, j))
		}
		out.Set(i, 3, offset[i])
	}
	out.Set(3, 3, 1)
	return out
}
