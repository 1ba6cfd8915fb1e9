package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 projective transform stored row-major.
type Homography [9]float64

// IdentityHomography returns the identity projective transform.
func IdentityHomography() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// HomographyFromAffine lifts an affine transform into projective form.
func HomographyFromAffine(t AffineTransform) Homography {
	return homographyFromDense(t.Homogeneous())
}

// Apply maps p through the homography. Points sent to infinity come back
// with infinite coordinates.
func (h Homography) Apply(p Point2D) Point2D {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return Point2D{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point2D{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// Params returns the nine matrix entries.
func (h Homography) Params() []float64 {
	out := make([]float64, 9)
	copy(out, h[:])
	return out
}

// Dense returns the homography as a gonum matrix.
func (h Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, h.Params())
}

// Normalized scales the matrix so that its last entry is 1. It is returned
// unchanged when that entry is zero.
func (h Homography) Normalized() Homography {
	if h[8] == 0 {
		return h
	}
	var out Homography
	for i, v := range h {
		out[i] = v / h[8]
	}
	return out
}

// Compose returns h applied after other.
func (h Homography) Compose(other Homography) Homography {
	var out mat.Dense
	out.Mul(h.Dense(), other.Dense())
	return homographyFromDense(&out)
}

// Inverse returns the inverse projective transform, if it exists.
func (h Homography) Inverse() (Homography, bool) {
	var inv mat.Dense
	if err := inv.Inverse(h.Dense()); err != nil {
		return Homography{}, false
	}
	out := homographyFromDense(&inv)
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Homography{}, false
		}
	}
	return out.Normalized(), true
}

func homographyFromDense(m *mat.Dense) Homography {
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.At(r, c)
		}
	}
	return h
}
