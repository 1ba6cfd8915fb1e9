package transform

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"ransac-align/pkg/geometry"
)

// rankTol is the smallest acceptable ratio between the smallest and largest
// singular value of a normalised design matrix.
const rankTol = 1e-9

// normalization returns the similarity that moves the centroid of pts to the
// origin and scales their mean distance from it to sqrt(2), together with its
// exact inverse. It reports false when the points coincide; the pair is then
// a plain translation and its inverse.
func normalization(pts []geometry.Point2D) (fwd, inv geometry.AffineTransform, ok bool) {
	c := geometry.Centroid(pts)
	d := geometry.MeanDistance(pts, c)
	if d <= 1e-12*math.Max(1, math.Hypot(c.X, c.Y)) {
		return geometry.Translation(-c.X, -c.Y), geometry.Translation(c.X, c.Y), false
	}
	s := math.Sqrt2 / d
	fwd = geometry.AffineTransform{A: s, D: s, TX: -s * c.X, TY: -s * c.Y}
	inv = geometry.AffineTransform{A: 1 / s, D: 1 / s, TX: c.X, TY: c.Y}
	return fwd, inv, true
}

// checkGeneralPosition fails with ErrDegenerateFit when the normalised points
// are collinear, i.e. the n x 3 matrix of rows (x, y, 1) is rank deficient.
func checkGeneralPosition(norm []geometry.Point2D) error {
	m := mat.NewDense(len(norm), 3, nil)
	for i, p := range norm {
		m.SetRow(i, []float64{p.X, p.Y, 1})
	}
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDNone) {
		return errors.Wrap(ErrDegenerateFit, "singular value decomposition failed")
	}
	s := svd.Values(nil)
	if s[0] == 0 || s[len(s)-1]/s[0] < rankTol {
		return errors.Wrapf(ErrDegenerateFit, "source points are collinear (condition %.3g)", s[0]/s[len(s)-1])
	}
	return nil
}

// normalizeSource applies the source normalisation and checks that the
// result is in general position.
func normalizeSource(src []geometry.Point2D) (geometry.AffineTransform, []geometry.Point2D, error) {
	t, _, ok := normalization(src)
	if !ok {
		return t, nil, errors.Wrap(ErrDegenerateFit, "source points coincide")
	}
	norm := ApplyAll(t, src)
	if err := checkGeneralPosition(norm); err != nil {
		return t, nil, err
	}
	return t, norm, nil
}
