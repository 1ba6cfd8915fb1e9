package ransac

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"ransac-align/internal/transform"
	"ransac-align/pkg/geometry"
)

// Options configures Fit.
type Options struct {
	// MinSamples is the number of pairs drawn per trial. Zero means the
	// model's minimum.
	MinSamples int
	// ResidualThreshold is the exclusive upper bound on the residual of an
	// inlier, in destination units.
	ResidualThreshold float64
	// MaxTrials is the hard limit on sampling iterations.
	MaxTrials int
	// StopProbability enables adaptive stopping when in (0, 1]: sampling ends
	// once an all-inlier sample has been drawn with at least this
	// probability, estimated from the best inlier ratio so far.
	StopProbability float64
	// StopSampleNum ends sampling once a candidate has at least this many
	// inliers. Zero disables it.
	StopSampleNum int
	// Workers evaluates trials concurrently when greater than one. Results do
	// not depend on it.
	Workers int

	// Rand is the sampling source. When nil a source seeded with Seed is used.
	Rand *rand.Rand
	Seed int64

	// IsSampleValid, if set, rejects a drawn sample before estimation.
	// Must be safe for concurrent use when Workers > 1.
	IsSampleValid func(src, dst []geometry.Point2D) bool
	// IsModelValid, if set, rejects a candidate before it is scored.
	// Must be safe for concurrent use when Workers > 1.
	IsModelValid func(t transform.Transform, src, dst []geometry.Point2D) bool

	Logger zerolog.Logger
}

// DefaultOptions returns a residual threshold of 2, 100 trials, seed 0 and
// no early stopping.
func DefaultOptions() Options {
	return Options{
		ResidualThreshold: 2,
		MaxTrials:         100,
		Logger:            zerolog.Nop(),
	}
}

// resolve validates the options against the model and data size and fills
// in defaults. It never touches the random source.
func (o Options) resolve(model transform.Model, nSrc, nDst int) (Options, error) {
	if model == nil {
		return o, newParamError("model", nil, "must be set")
	}
	if nSrc != nDst {
		return o, newParamError("dst", nDst, "must have as many points as src")
	}
	if o.MinSamples == 0 {
		o.MinSamples = model.MinSamples()
	}
	if o.MinSamples < model.MinSamples() {
		return o, newParamError("min_samples", o.MinSamples, "below the model minimum")
	}
	if o.MinSamples > nSrc {
		return o, newParamError("min_samples", o.MinSamples, "exceeds the number of correspondences",
			ErrInvalidParameters, ErrInsufficientData)
	}
	if !(o.ResidualThreshold > 0) || math.IsInf(o.ResidualThreshold, 1) {
		return o, newParamError("residual_threshold", o.ResidualThreshold, "must be positive and finite")
	}
	if o.MaxTrials < 1 {
		return o, newParamError("max_trials", o.MaxTrials, "must be at least 1")
	}
	if !(o.StopProbability >= 0 && o.StopProbability <= 1) {
		return o, newParamError("stop_probability", o.StopProbability, "must be in [0, 1]")
	}
	if o.StopSampleNum < 0 {
		return o, newParamError("stop_sample_num", o.StopSampleNum, "must not be negative")
	}
	if o.Workers < 0 {
		return o, newParamError("workers", o.Workers, "must not be negative")
	}
	return o, nil
}

// DynamicMaxTrials returns the number of trials after which an all-inlier
// sample of size minSamples has been drawn with the given probability,
// when nInliers of nSamples pairs are inliers. It is +Inf when no bound
// applies.
func DynamicMaxTrials(nInliers, nSamples, minSamples int, probability float64) float64 {
	if nInliers == 0 || nSamples == 0 {
		return math.Inf(1)
	}
	nom := 1 - probability
	if nom <= 0 {
		return math.Inf(1)
	}
	ratio := float64(nInliers) / float64(nSamples)
	denom := 1 - math.Pow(ratio, float64(minSamples))
	switch {
	case denom <= 0:
		return 1
	case denom >= 1:
		return math.Inf(1)
	}
	return math.Ceil(math.Log(nom) / math.Log(denom))
}
