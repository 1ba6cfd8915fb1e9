package correspondence

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"ransac-align/pkg/geometry"
)

// Mapper is anything that maps source points to destination points.
type Mapper interface {
	Apply(p geometry.Point2D) geometry.Point2D
}

// SynthOptions describes a synthetic correspondence set.
type SynthOptions struct {
	Truth    Mapper
	Inliers  int
	Outliers int
	// Noise is the standard deviation of Gaussian noise added to every
	// destination coordinate.
	Noise float64
	// Outlier destinations are moved a uniform distance in
	// [MinDisplacement, MaxDisplacement] from their true location.
	MinDisplacement float64
	MaxDisplacement float64
	// Source points are drawn uniformly inside Bounds.
	Bounds geometry.Rect
}

// DemoTransform is scale 0.9, rotation 0.2 rad, translation (20, -10).
func DemoTransform() geometry.AffineTransform {
	return geometry.NewAffine(0.9, 0.9, 0.2, 0, 20, -10)
}

// DefaultSynthOptions returns 20 exact matches and 10 outliers displaced by
// 50 to 150 units over a 200x200 area.
func DefaultSynthOptions() SynthOptions {
	return SynthOptions{
		Truth:           DemoTransform(),
		Inliers:         20,
		Outliers:        10,
		MinDisplacement: 50,
		MaxDisplacement: 150,
		Bounds:          geometry.Rect{Width: 200, Height: 200},
	}
}

// Synthesize generates a set and the ground-truth inlier mask. Outliers are
// scattered at random positions in the sequence.
func Synthesize(opts SynthOptions, rng *rand.Rand) (Set, []bool, error) {
	switch {
	case opts.Truth == nil:
		return Set{}, nil, errors.New("synth: no ground-truth transform")
	case opts.Inliers < 0 || opts.Outliers < 0:
		return Set{}, nil, errors.New("synth: negative point count")
	case opts.Noise < 0:
		return Set{}, nil, errors.New("synth: negative noise")
	case opts.MinDisplacement < 0 || opts.MaxDisplacement < opts.MinDisplacement:
		return Set{}, nil, errors.Errorf("synth: bad displacement range [%g, %g]", opts.MinDisplacement, opts.MaxDisplacement)
	case opts.Bounds.Width <= 0 || opts.Bounds.Height <= 0:
		return Set{}, nil, errors.New("synth: empty bounds")
	}

	n := opts.Inliers + opts.Outliers
	truth := make([]bool, n)
	for _, i := range rng.Perm(n)[:opts.Inliers] {
		truth[i] = true
	}

	var s Set
	for i := 0; i < n; i++ {
		src := geometry.NewPoint2D(
			opts.Bounds.X+rng.Float64()*opts.Bounds.Width,
			opts.Bounds.Y+rng.Float64()*opts.Bounds.Height,
		)
		dst := opts.Truth.Apply(src)
		if opts.Noise > 0 {
			dst = dst.Add(geometry.NewPoint2D(rng.NormFloat64()*opts.Noise, rng.NormFloat64()*opts.Noise))
		}
		if !truth[i] {
			angle := rng.Float64() * 2 * math.Pi
			dist := opts.MinDisplacement + rng.Float64()*(opts.MaxDisplacement-opts.MinDisplacement)
			sin, cos := math.Sincos(angle)
			dst = dst.Add(geometry.NewPoint2D(dist*cos, dist*sin))
		}
		s.Append(src, dst)
	}
	return s, truth, nil
}
