package transform

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"ransac-align/pkg/geometry"
)

const affineMinSamples = 3

// Affine is the 6-parameter affine model.
type Affine struct{}

// Kind implements Model.
func (Affine) Kind() Kind { return KindAffine }

// MinSamples implements Model.
func (Affine) MinSamples() int { return affineMinSamples }

// Estimate fits [x', y'] = [a, b, tx; c, d, ty] * [x, y, 1] to the pairs.
// Both point sets are normalised first; the system is solved by QR, which
// is exact for three pairs and least squares beyond that.
func (Affine) Estimate(src, dst []geometry.Point2D) (Transform, error) {
	if err := checkPairs(src, dst, affineMinSamples); err != nil {
		return nil, err
	}
	srcT, srcN, err := normalizeSource(src)
	if err != nil {
		return nil, err
	}
	dstT, dstInv, _ := normalization(dst)
	dstN := ApplyAll(dstT, dst)

	n := len(src)
	A := mat.NewDense(n*2, 6, nil)
	B := mat.NewVecDense(n*2, nil)
	for i := 0; i < n; i++ {
		x, y := srcN[i].X, srcN[i].Y

		// x' = a*x + b*y + tx
		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dstN[i].X)

		// y' = c*x + d*y + ty
		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, dstN[i].Y)
	}

	var qr mat.QR
	qr.Factorize(A)
	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return nil, errors.Wrapf(ErrDegenerateFit, "affine solve: %v", err)
	}

	normalized := geometry.AffineTransform{
		A:  params.AtVec(0),
		B:  params.AtVec(1),
		TX: params.AtVec(2),
		C:  params.AtVec(3),
		D:  params.AtVec(4),
		TY: params.AtVec(5),
	}
	return checkFinite(dstInv.Compose(normalized).Compose(srcT))
}

// Invert implements Model.
func (Affine) Invert(t Transform) (Transform, error) {
	return invertAffine(t)
}

func invertAffine(t Transform) (Transform, error) {
	a, ok := t.(geometry.AffineTransform)
	if !ok {
		return nil, errors.Errorf("expected an affine transform, got %T", t)
	}
	inv, ok := a.Inverse()
	if !ok {
		return nil, errors.Wrapf(ErrDegenerateFit, "matrix is singular (det %.3g)", a.Det())
	}
	return inv, nil
}
