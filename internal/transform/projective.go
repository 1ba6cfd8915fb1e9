package transform

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"ransac-align/pkg/geometry"
)

const projectiveMinSamples = 4

// Projective is the 8-DOF homography model.
type Projective struct{}

// Kind implements Model.
func (Projective) Kind() Kind { return KindProjective }

// MinSamples implements Model.
func (Projective) MinSamples() int { return projectiveMinSamples }

// Estimate solves the normalised direct linear transform: the homography is
// the right singular vector of the 2n x 9 system for the smallest singular
// value.
func (Projective) Estimate(src, dst []geometry.Point2D) (Transform, error) {
	if err := checkPairs(src, dst, projectiveMinSamples); err != nil {
		return nil, err
	}
	srcT, srcN, err := normalizeSource(src)
	if err != nil {
		return nil, err
	}
	dstT, dstInv, ok := normalization(dst)
	if !ok {
		return nil, errors.Wrap(ErrDegenerateFit, "destination points coincide")
	}
	dstN := ApplyAll(dstT, dst)

	n := len(src)
	A := mat.NewDense(n*2, 9, nil)
	for i := 0; i < n; i++ {
		X, Y := srcN[i].X, srcN[i].Y
		x, y := dstN[i].X, dstN[i].Y
		A.SetRow(i*2, []float64{-X, -Y, -1, 0, 0, 0, x * X, x * Y, x})
		A.SetRow(i*2+1, []float64{0, 0, 0, -X, -Y, -1, y * X, y * Y, y})
	}

	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDFull) {
		return nil, errors.Wrap(ErrDegenerateFit, "singular value decomposition failed")
	}
	s := svd.Values(nil)
	// A one-dimensional null space needs the 8th singular value clear of zero.
	if s[0] == 0 || s[7]/s[0] < rankTol {
		return nil, errors.Wrap(ErrDegenerateFit, "homography is not unique")
	}
	var v mat.Dense
	svd.VTo(&v)

	var hn geometry.Homography
	for i := range hn {
		hn[i] = v.At(i, 8)
	}
	if det := mat.Det(hn.Dense()); math.Abs(det) < rankTol {
		return nil, errors.Wrap(ErrDegenerateFit, "homography is singular")
	}

	h := geometry.HomographyFromAffine(dstInv).
		Compose(hn).
		Compose(geometry.HomographyFromAffine(srcT))
	if h[8] == 0 {
		return nil, errors.Wrap(ErrDegenerateFit, "homography maps the origin to infinity")
	}
	return checkFinite(h.Normalized())
}

// Invert implements Model.
func (Projective) Invert(t Transform) (Transform, error) {
	var h geometry.Homography
	switch tt := t.(type) {
	case geometry.Homography:
		h = tt
	case geometry.AffineTransform:
		h = geometry.HomographyFromAffine(tt)
	default:
		return nil, errors.Errorf("expected a homography, got %T", t)
	}
	inv, ok := h.Inverse()
	if !ok {
		return nil, errors.Wrap(ErrDegenerateFit, "homography is singular")
	}
	return inv, nil
}
