package ransac

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ransac-align/internal/correspondence"
	"ransac-align/internal/transform"
	"ransac-align/pkg/geometry"
)

func synth(t *testing.T, inliers, outliers int, seed int64) (correspondence.Set, []bool) {
	t.Helper()
	opts := correspondence.DefaultSynthOptions()
	opts.Inliers, opts.Outliers = inliers, outliers
	set, truth, err := correspondence.Synthesize(opts, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return set, truth
}

func assertAffineNear(t *testing.T, want geometry.AffineTransform, got transform.Transform, epsilon float64) {
	t.Helper()
	g, ok := got.(geometry.AffineTransform)
	require.True(t, ok, "got %T", got)
	wp, gp := want.Params(), g.Params()
	for i := range wp {
		assert.InDelta(t, wp[i], gp[i], epsilon, "param %d", i)
	}
}

func TestFitCleanData(t *testing.T) {
	set, _ := synth(t, 25, 0, 1)
	opts := DefaultOptions()

	res, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	assert.True(t, res.Refined)
	assert.Equal(t, set.Len(), res.NumInliers)
	assert.Equal(t, 1.0, res.InlierRatio())
	assert.Equal(t, 0, res.BestTrial, "first trial already explains every pair")
	assertAffineNear(t, correspondence.DemoTransform(), res.Transform, 1e-6)

	direct, err := transform.Affine{}.Estimate(set.Src, set.Dst)
	require.NoError(t, err)
	assertAffineNear(t, correspondence.DemoTransform(), direct, 1e-6)
}

func TestFitSeparatesOutliers(t *testing.T) {
	set, truth := synth(t, 20, 10, 2)
	opts := DefaultOptions()
	opts.ResidualThreshold = 2
	opts.MaxTrials = 100
	opts.Seed = 42

	res, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	assert.Equal(t, truth, res.Inliers)
	assert.Equal(t, 20, res.NumInliers)
	assert.Len(t, res.Residuals, set.Len())
	assertAffineNear(t, correspondence.DemoTransform(), res.Transform, 1e-6)

	for i, idx := range res.InlierIndices() {
		assert.True(t, truth[idx], "inlier %d", i)
	}
}

func TestFitAtExtremeScales(t *testing.T) {
	for _, k := range []float64{1e-4, 1e4} {
		for _, model := range []transform.Model{transform.Affine{}, transform.Projective{}} {
			t.Run(fmt.Sprintf("%g/%s", k, model.Kind()), func(t *testing.T) {
				set, truth := synth(t, 20, 10, 2)
				for i := range set.Src {
					set.Src[i] = geometry.NewPoint2D(set.Src[i].X*k, set.Src[i].Y*k)
					set.Dst[i] = geometry.NewPoint2D(set.Dst[i].X*k, set.Dst[i].Y*k)
				}
				want := geometry.Scale(k, k).
					Compose(correspondence.DemoTransform()).
					Compose(geometry.Scale(1/k, 1/k))

				opts := DefaultOptions()
				opts.ResidualThreshold = 2 * k
				opts.MaxTrials = 400
				opts.Seed = 42
				res, err := FitSet(model, set, opts)
				require.NoError(t, err)
				assert.True(t, res.Refined)
				assert.Equal(t, truth, res.Inliers)

				for i, p := range set.Src {
					if truth[i] {
						got := res.Transform.Apply(p)
						exp := want.Apply(p)
						assert.InDelta(t, exp.X, got.X, 1e-6*k, "pair %d", i)
						assert.InDelta(t, exp.Y, got.Y, 1e-6*k, "pair %d", i)
					}
				}
			})
		}
	}
}

func TestFitNoisyData(t *testing.T) {
	opts := correspondence.DefaultSynthOptions()
	opts.Inliers, opts.Outliers, opts.Noise = 60, 30, 0.3
	set, truth, err := correspondence.Synthesize(opts, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	fitOpts := DefaultOptions()
	fitOpts.ResidualThreshold = 3
	fitOpts.MaxTrials = 500
	res, err := FitSet(transform.Affine{}, set, fitOpts)
	require.NoError(t, err)
	assert.Equal(t, truth, res.Inliers)
	assertAffineNear(t, correspondence.DemoTransform(), res.Transform, 0.5)
}

func TestFitDeterministic(t *testing.T) {
	set, _ := synth(t, 20, 15, 3)
	opts := DefaultOptions()
	opts.Seed = 99
	opts.MaxTrials = 200

	first, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	second, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	opts.Rand = rand.New(rand.NewSource(99))
	injected, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	assert.Equal(t, first, injected)
}

func TestFitWorkersMatchSequential(t *testing.T) {
	set, _ := synth(t, 12, 18, 4)
	for _, stop := range []float64{0, 0.99} {
		opts := DefaultOptions()
		opts.Seed = 7
		opts.MaxTrials = 300
		opts.StopProbability = stop

		seq, err := FitSet(transform.Affine{}, set, opts)
		require.NoError(t, err)

		opts.Workers = 4
		par, err := FitSet(transform.Affine{}, set, opts)
		require.NoError(t, err)
		assert.Equal(t, seq, par, "stop probability %v", stop)
	}
}

func TestFitPermutationPermutesMask(t *testing.T) {
	set, truth := synth(t, 20, 10, 6)
	perm := rand.New(rand.NewSource(8)).Perm(set.Len())
	permuted := set.Permute(perm)

	opts := DefaultOptions()
	opts.MaxTrials = 300
	res, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	pres, err := FitSet(transform.Affine{}, permuted, opts)
	require.NoError(t, err)

	require.Equal(t, truth, res.Inliers)
	for i, j := range perm {
		assert.Equal(t, res.Inliers[j], pres.Inliers[i])
		assert.InDelta(t, res.Residuals[j], pres.Residuals[i], 1e-6)
	}
}

// Two groups of equal size, each consistent with its own translation. The
// first trial that samples a pure group must win; later ties must not
// replace it.
func TestFitTieBreakKeepsEarliestTrial(t *testing.T) {
	var set correspondence.Set
	for i := 0; i < 5; i++ {
		p := geometry.NewPoint2D(float64(i*40), float64((i*i*17)%90))
		set.Append(p, p.Add(geometry.NewPoint2D(100, 0)))
	}
	for i := 0; i < 5; i++ {
		p := geometry.NewPoint2D(float64(i*35+7), float64(200+(i*i*13)%70))
		set.Append(p, p.Add(geometry.NewPoint2D(0, -300)))
	}
	group := func(i int) int { return i / 5 }

	const seed = 11
	opts := DefaultOptions()
	opts.Seed = seed
	opts.ResidualThreshold = 1
	opts.MaxTrials = 60

	// Replay the sampling to find the first pure trial.
	replay := rand.New(rand.NewSource(seed))
	first, firstGroup := -1, -1
	for i := 0; i < opts.MaxTrials; i++ {
		s := replay.Perm(set.Len())[:2]
		if group(s[0]) == group(s[1]) {
			first, firstGroup = i, group(s[0])
			break
		}
	}
	require.NotEqual(t, -1, first, "seed must produce a pure sample")

	res, err := FitSet(transform.Euclidean{}, set, opts)
	require.NoError(t, err)
	assert.Equal(t, first, res.BestTrial)
	assert.Equal(t, 5, res.NumInliers)
	for i, in := range res.Inliers {
		assert.Equal(t, group(i) == firstGroup, in, "pair %d", i)
	}
}

func TestFitAllDegenerate(t *testing.T) {
	var set correspondence.Set
	for i := 0; i < 10; i++ {
		p := geometry.NewPoint2D(float64(i), float64(2*i+1))
		set.Append(p, geometry.NewPoint2D(float64(i*i), 3))
	}
	opts := DefaultOptions()
	opts.MaxTrials = 25

	res, err := FitSet(transform.Affine{}, set, opts)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrRobustFitFailed))
	assert.False(t, errors.Is(err, transform.ErrDegenerateFit), "per-trial failures stay internal")

	var failed *FitFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 25, failed.Trials)
	assert.Equal(t, 25, failed.Skipped)
	assert.Equal(t, 24, failed.LastTrial)
	assert.Len(t, failed.LastSample, 3)
	assert.True(t, errors.Is(failed.LastErr, transform.ErrDegenerateFit))
}

func TestFitSkipsDegenerateTrials(t *testing.T) {
	set, truth := synth(t, 20, 0, 9)
	// Make several pairs collinear and identical so many samples degenerate.
	for i := 0; i < 8; i++ {
		set.Src[i] = geometry.NewPoint2D(50, 50)
		set.Dst[i] = correspondence.DemoTransform().Apply(set.Src[i])
	}
	opts := DefaultOptions()
	opts.MaxTrials = 200
	res, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	assert.Greater(t, res.Skipped, 0)
	assert.Equal(t, truth, res.Inliers)
}

func TestFitParameterErrors(t *testing.T) {
	set, _ := synth(t, 6, 0, 10)
	tests := []struct {
		name   string
		mutate func(*Options)
		src    []geometry.Point2D
		dst    []geometry.Point2D
		kinds  []error
	}{
		{name: "zero threshold", mutate: func(o *Options) { o.ResidualThreshold = 0 }, kinds: []error{ErrInvalidParameters}},
		{name: "negative threshold", mutate: func(o *Options) { o.ResidualThreshold = -1 }, kinds: []error{ErrInvalidParameters}},
		{name: "nan threshold", mutate: func(o *Options) { o.ResidualThreshold = math.NaN() }, kinds: []error{ErrInvalidParameters}},
		{name: "zero trials", mutate: func(o *Options) { o.MaxTrials = 0 }, kinds: []error{ErrInvalidParameters}},
		{name: "below model minimum", mutate: func(o *Options) { o.MinSamples = 2 }, kinds: []error{ErrInvalidParameters}},
		{name: "above data size", mutate: func(o *Options) { o.MinSamples = 7 }, kinds: []error{ErrInvalidParameters, ErrInsufficientData}},
		{name: "stop probability", mutate: func(o *Options) { o.StopProbability = 1.5 }, kinds: []error{ErrInvalidParameters}},
		{name: "negative workers", mutate: func(o *Options) { o.Workers = -2 }, kinds: []error{ErrInvalidParameters}},
		{
			name:  "too few pairs",
			src:   set.Src[:2],
			dst:   set.Dst[:2],
			kinds: []error{ErrInsufficientData, ErrInvalidParameters},
		},
		{
			name:  "length mismatch",
			src:   set.Src,
			dst:   set.Dst[:5],
			kinds: []error{ErrInvalidParameters},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			// A source that panics proves validation happens before sampling.
			opts.Rand = rand.New(panicSource{})
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			src, dst := set.Src, set.Dst
			if tt.src != nil {
				src, dst = tt.src, tt.dst
			}
			res, err := Fit(transform.Affine{}, src, dst, opts)
			require.Error(t, err)
			assert.Nil(t, res)
			for _, k := range tt.kinds {
				assert.True(t, errors.Is(err, k), "%v is not %v", err, k)
			}
			var perr *ParamError
			assert.True(t, errors.As(err, &perr))
		})
	}
}

type panicSource struct{}

func (panicSource) Int63() int64 { panic("sampled before validation") }
func (panicSource) Seed(int64)   {}

func TestFitMinSamplesEqualsCount(t *testing.T) {
	set, _ := synth(t, 8, 0, 12)
	opts := DefaultOptions()
	opts.MinSamples = set.Len()
	opts.MaxTrials = 10

	res, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Trials)
	assert.Equal(t, 0, res.BestTrial)
	assert.Equal(t, set.Len(), res.NumInliers)
	assertAffineNear(t, correspondence.DemoTransform(), res.Transform, 1e-6)
}

func TestFitAdaptiveStop(t *testing.T) {
	set, _ := synth(t, 30, 0, 13)
	opts := DefaultOptions()
	opts.MaxTrials = 1000
	opts.StopProbability = 0.99

	res, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Trials)
	assert.True(t, res.StoppedEarly)

	opts.StopProbability = 1
	opts.MaxTrials = 40
	res, err = FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	assert.Equal(t, 40, res.Trials)
	assert.False(t, res.StoppedEarly)
}

func TestFitStopSampleNum(t *testing.T) {
	set, _ := synth(t, 20, 10, 14)
	opts := DefaultOptions()
	opts.MaxTrials = 1000
	opts.StopSampleNum = 20

	res, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	assert.True(t, res.StoppedEarly)
	assert.Less(t, res.Trials, 1000)
	assert.Equal(t, 20, res.NumInliers)
}

func TestDynamicMaxTrials(t *testing.T) {
	assert.True(t, math.IsInf(DynamicMaxTrials(0, 10, 3, 0.99), 1))
	assert.True(t, math.IsInf(DynamicMaxTrials(5, 10, 3, 1), 1))
	assert.Equal(t, 1.0, DynamicMaxTrials(10, 10, 3, 0.99))
	assert.Equal(t, 35.0, DynamicMaxTrials(5, 10, 3, 0.99))
	assert.Greater(t, DynamicMaxTrials(2, 10, 3, 0.99), DynamicMaxTrials(5, 10, 3, 0.99))
}

func TestFitValidityHooks(t *testing.T) {
	set, _ := synth(t, 10, 0, 15)
	opts := DefaultOptions()
	opts.MaxTrials = 5
	opts.IsSampleValid = func(src, dst []geometry.Point2D) bool { return false }

	_, err := FitSet(transform.Affine{}, set, opts)
	var failed *FitFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, errSampleRejected, failed.LastErr)

	opts.IsSampleValid = nil
	calls := 0
	opts.IsModelValid = func(tr transform.Transform, src, dst []geometry.Point2D) bool {
		calls++
		a := tr.(geometry.AffineTransform)
		return a.Det() > 0
	}
	res, err := FitSet(transform.Affine{}, set, opts)
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, set.Len(), res.NumInliers)
}

// refitFails behaves like Affine on minimal samples but refuses larger sets.
type refitFails struct{ transform.Affine }

func (r refitFails) Estimate(src, dst []geometry.Point2D) (transform.Transform, error) {
	if len(src) > r.MinSamples() {
		return nil, errors.Wrap(transform.ErrDegenerateFit, "refit refused")
	}
	return r.Affine.Estimate(src, dst)
}

func TestFitKeepsTrialModelWhenRefitFails(t *testing.T) {
	set, truth := synth(t, 20, 10, 16)
	opts := DefaultOptions()
	opts.MaxTrials = 200
	opts.Logger = zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)

	res, err := FitSet(refitFails{}, set, opts)
	require.NoError(t, err)
	assert.False(t, res.Refined)
	assert.Equal(t, truth, res.Inliers)
	assert.Len(t, res.BestSample, 3)
	assertAffineNear(t, correspondence.DemoTransform(), res.Transform, 1e-6)
}

func TestFitOtherModels(t *testing.T) {
	for _, kind := range []transform.Kind{transform.KindSimilarity, transform.KindProjective} {
		t.Run(string(kind), func(t *testing.T) {
			model, err := transform.ForKind(kind)
			require.NoError(t, err)

			synthOpts := correspondence.DefaultSynthOptions()
			synthOpts.Truth = geometry.NewAffine(1.2, 1.2, -0.3, 0, 5, 7)
			set, truth, err := correspondence.Synthesize(synthOpts, rand.New(rand.NewSource(17)))
			require.NoError(t, err)

			opts := DefaultOptions()
			opts.MaxTrials = 400
			res, err := FitSet(model, set, opts)
			require.NoError(t, err)
			assert.Equal(t, kind, res.Kind)
			assert.Equal(t, truth, res.Inliers)
		})
	}
}
