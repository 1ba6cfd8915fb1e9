package transform

import (
	"math"

	"github.com/pkg/errors"

	"ransac-align/pkg/geometry"
)

const rigidMinSamples = 2

// Euclidean is the rotation + translation model (3 DOF).
type Euclidean struct{}

// Kind implements Model.
func (Euclidean) Kind() Kind { return KindEuclidean }

// MinSamples implements Model.
func (Euclidean) MinSamples() int { return rigidMinSamples }

// Estimate implements Model.
func (Euclidean) Estimate(src, dst []geometry.Point2D) (Transform, error) {
	return estimateRigid(src, dst, false)
}

// Invert implements Model.
func (Euclidean) Invert(t Transform) (Transform, error) { return invertAffine(t) }

// Similarity is rotation + uniform scale + translation (4 DOF).
type Similarity struct{}

// Kind implements Model.
func (Similarity) Kind() Kind { return KindSimilarity }

// MinSamples implements Model.
func (Similarity) MinSamples() int { return rigidMinSamples }

// Estimate implements Model.
func (Similarity) Estimate(src, dst []geometry.Point2D) (Transform, error) {
	return estimateRigid(src, dst, true)
}

// Invert implements Model.
func (Similarity) Invert(t Transform) (Transform, error) { return invertAffine(t) }

// estimateRigid computes the least-squares rotation (and optionally uniform
// scale) about the centroids using the cross/dot product method. Two pairs
// determine it exactly.
func estimateRigid(src, dst []geometry.Point2D, withScale bool) (Transform, error) {
	if err := checkPairs(src, dst, rigidMinSamples); err != nil {
		return nil, err
	}

	srcC := geometry.Centroid(src)
	dstC := geometry.Centroid(dst)

	var dotSum, crossSum, srcVar float64
	for i := range src {
		s := src[i].Sub(srcC)
		d := dst[i].Sub(dstC)
		dotSum += s.X*d.X + s.Y*d.Y
		crossSum += s.X*d.Y - s.Y*d.X
		srcVar += s.X*s.X + s.Y*s.Y
	}
	if srcVar <= 1e-24*math.Max(1, srcC.X*srcC.X+srcC.Y*srcC.Y) {
		return nil, errors.Wrap(ErrDegenerateFit, "source points coincide")
	}

	theta := math.Atan2(crossSum, dotSum)
	scale := 1.0
	if withScale {
		scale = math.Hypot(dotSum, crossSum) / srcVar
	}
	sinT, cosT := math.Sincos(theta)

	// Translation: dstC = s * R * srcC + t
	tx := dstC.X - scale*(cosT*srcC.X-sinT*srcC.Y)
	ty := dstC.Y - scale*(sinT*srcC.X+cosT*srcC.Y)

	return geometry.AffineTransform{
		A: scale * cosT, B: -scale * sinT, TX: tx,
		C: scale * sinT, D: scale * cosT, TY: ty,
	}, nil
}
