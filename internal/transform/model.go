// Package transform holds the parametric models fitted to point
// correspondences: each one can estimate itself from a minimal or
// over-determined set of pairs, map points forward, and invert.
package transform

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"ransac-align/pkg/geometry"
)

// ErrDegenerateFit is returned when the supplied points cannot determine a
// unique, well-conditioned model (collinear or coincident sources, too few
// pairs, non-finite coordinates).
var ErrDegenerateFit = errors.New("degenerate fit")

// ErrPointCountMismatch is returned when src and dst differ in length.
var ErrPointCountMismatch = errors.New("point count mismatch")

// Transform is a fitted mapping from source to destination coordinates.
type Transform interface {
	Apply(p geometry.Point2D) geometry.Point2D
	Params() []float64
}

// Model is a family of transforms that can be fitted to correspondences.
type Model interface {
	Kind() Kind
	// MinSamples is the size of a minimal sample.
	MinSamples() int
	// Estimate fits the model to src[i] -> dst[i]. It solves exactly for a
	// minimal sample and in the least-squares sense for more pairs.
	Estimate(src, dst []geometry.Point2D) (Transform, error)
	// Invert returns the inverse mapping of a transform produced by Estimate.
	Invert(t Transform) (Transform, error)
}

// Kind names a model family.
type Kind string

// Supported model kinds.
const (
	KindAffine     Kind = "affine"
	KindSimilarity Kind = "similarity"
	KindEuclidean  Kind = "euclidean"
	KindProjective Kind = "projective"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindAffine, KindSimilarity, KindEuclidean, KindProjective}

// ParseKind resolves a case-insensitive model name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAffine, KindSimilarity, KindEuclidean, KindProjective:
		return k, nil
	case "rigid":
		return KindEuclidean, nil
	case "homography":
		return KindProjective, nil
	default:
		return "", errors.Errorf("unknown model %q", s)
	}
}

// ForKind returns the model implementation for k.
func ForKind(k Kind) (Model, error) {
	switch k {
	case KindAffine:
		return Affine{}, nil
	case KindSimilarity:
		return Similarity{}, nil
	case KindEuclidean:
		return Euclidean{}, nil
	case KindProjective:
		return Projective{}, nil
	default:
		return nil, errors.Errorf("unknown model %q", k)
	}
}

// Residuals returns, for each pair, the Euclidean distance between t(src[i])
// and dst[i]. The output has the same length and order as the input.
func Residuals(t Transform, src, dst []geometry.Point2D) []float64 {
	out := make([]float64, len(src))
	ResidualsInto(out, t, src, dst)
	return out
}

// ResidualsInto is Residuals writing into a caller-owned slice of len(src).
func ResidualsInto(out []float64, t Transform, src, dst []geometry.Point2D) {
	for i := range src {
		out[i] = t.Apply(src[i]).Distance(dst[i])
	}
}

// ApplyAll maps every point through t.
func ApplyAll(t Transform, pts []geometry.Point2D) []geometry.Point2D {
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[i] = t.Apply(p)
	}
	return out
}

// checkPairs validates the common preconditions of every Estimate.
func checkPairs(src, dst []geometry.Point2D, need int) error {
	if len(src) != len(dst) {
		return errors.Wrapf(ErrPointCountMismatch, "%d vs %d", len(src), len(dst))
	}
	if len(src) < need {
		return errors.Wrapf(ErrDegenerateFit, "need at least %d points, got %d", need, len(src))
	}
	for i := range src {
		if !src[i].IsFinite() || !dst[i].IsFinite() {
			return errors.Wrapf(ErrDegenerateFit, "non-finite coordinate at pair %d", i)
		}
	}
	return nil
}

// checkFinite rejects a fitted transform with a NaN or infinite coefficient.
func checkFinite(t Transform) (Transform, error) {
	for i, v := range t.Params() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrapf(ErrDegenerateFit, "coefficient %d is %v", i, v)
		}
	}
	return t, nil
}
