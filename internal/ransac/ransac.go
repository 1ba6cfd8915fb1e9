// Package ransac fits a transform model to point correspondences that
// contain gross outliers, by repeatedly fitting minimal random samples and
// keeping the candidate with the largest inlier support.
package ransac

import (
	"math/rand"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ransac-align/internal/correspondence"
	"ransac-align/internal/transform"
	"ransac-align/pkg/geometry"
)

// trialsPerWorker sets how many trials are evaluated per worker between two
// reductions.
const trialsPerWorker = 8

// Result is the outcome of a robust fit.
type Result struct {
	Kind      transform.Kind
	Transform transform.Transform
	// Inliers has one entry per correspondence, computed under Transform.
	Inliers    []bool
	NumInliers int
	// Residuals under Transform, one per correspondence.
	Residuals []float64

	// Trials is the number of trials evaluated, Skipped how many of them
	// were degenerate or rejected.
	Trials  int
	Skipped int
	// BestTrial is the zero-based index of the winning trial and BestSample
	// the correspondence indices it drew.
	BestTrial  int
	BestSample []int
	// Refined is false when the refit on all inliers failed and Transform
	// is the winning trial's candidate.
	Refined      bool
	StoppedEarly bool
}

// InlierIndices returns the indices of the inlier correspondences.
func (r *Result) InlierIndices() []int {
	idx := make([]int, 0, r.NumInliers)
	for i, in := range r.Inliers {
		if in {
			idx = append(idx, i)
		}
	}
	return idx
}

// InlierRatio returns NumInliers over the number of correspondences.
func (r *Result) InlierRatio() float64 {
	if len(r.Inliers) == 0 {
		return 0
	}
	return float64(r.NumInliers) / float64(len(r.Inliers))
}

// trial is the per-iteration state. Slots are reused between batches, so
// anything that must outlive a batch is copied out.
type trial struct {
	index      int
	sample     []int
	subSrc     []geometry.Point2D
	subDst     []geometry.Point2D
	model      transform.Transform
	residuals  []float64
	inliers    []bool
	numInliers int
	err        error
}

// snapshot is the best-so-far candidate, owned by Fit.
type snapshot struct {
	index      int
	sample     []int
	model      transform.Transform
	inliers    []bool
	numInliers int
}

// FitSet is Fit over a correspondence set.
func FitSet(model transform.Model, set correspondence.Set, opts Options) (*Result, error) {
	return Fit(model, set.Src, set.Dst, opts)
}

// Fit robustly estimates model from the pairs src[i] -> dst[i].
//
// Each trial draws MinSamples distinct pairs uniformly at random, estimates
// a candidate, and counts the pairs whose residual is below
// ResidualThreshold. A candidate replaces the best only with strictly more
// inliers, so the earliest trial wins ties. The winner is re-estimated on
// all of its inliers and the inlier mask recomputed under the refit.
//
// Degenerate samples are skipped. Fit fails with ErrRobustFitFailed if every
// trial was skipped.
func Fit(model transform.Model, src, dst []geometry.Point2D, opts Options) (*Result, error) {
	opts, err := opts.resolve(model, len(src), len(dst))
	if err != nil {
		return nil, err
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(opts.Seed))
	}
	log := opts.Logger.With().Str("model", string(model.Kind())).Logger()

	e := &estimator{model: model, src: src, dst: dst, opts: opts, log: log}
	best, stats := e.search(rng)
	if best == nil {
		return nil, &FitFailedError{
			Trials:     stats.trials,
			Skipped:    stats.skipped,
			LastTrial:  stats.lastSkip.index,
			LastSample: stats.lastSkip.sample,
			LastErr:    stats.lastSkip.err,
		}
	}

	res := &Result{
		Kind:         model.Kind(),
		Trials:       stats.trials,
		Skipped:      stats.skipped,
		BestTrial:    best.index,
		BestSample:   best.sample,
		StoppedEarly: stats.stoppedEarly,
	}
	e.refine(res, best)

	log.Info().
		Int("trials", res.Trials).
		Int("skipped", res.Skipped).
		Int("best_trial", res.BestTrial).
		Int("inliers", res.NumInliers).
		Int("total", len(src)).
		Bool("refined", res.Refined).
		Bool("stopped_early", res.StoppedEarly).
		Msg("robust fit complete")
	return res, nil
}

type estimator struct {
	model    transform.Model
	src, dst []geometry.Point2D
	opts     Options
	log      zerolog.Logger
}

type searchStats struct {
	trials       int
	skipped      int
	stoppedEarly bool
	lastSkip     struct {
		index  int
		sample []int
		err    error
	}
}

// search runs the trials and returns a copy of the best candidate, or nil.
// Samples are drawn in trial order from rng and results are reduced in
// trial order, so the outcome does not depend on the worker count.
func (e *estimator) search(rng *rand.Rand) (*snapshot, searchStats) {
	var (
		stats searchStats
		best  *snapshot
	)
	n := len(e.src)
	batchSize := 1
	if e.opts.Workers > 1 {
		batchSize = e.opts.Workers * trialsPerWorker
	}
	batch := make([]trial, min(batchSize, e.opts.MaxTrials))
	for i := range batch {
		batch[i] = trial{
			subSrc:    make([]geometry.Point2D, e.opts.MinSamples),
			subDst:    make([]geometry.Point2D, e.opts.MinSamples),
			residuals: make([]float64, n),
			inliers:   make([]bool, n),
		}
	}

	for start := 0; start < e.opts.MaxTrials; start += len(batch) {
		count := min(len(batch), e.opts.MaxTrials-start)
		for i := 0; i < count; i++ {
			t := &batch[i]
			t.index = start + i
			t.sample = rng.Perm(n)[:e.opts.MinSamples]
		}
		e.evaluateBatch(batch[:count])

		for i := 0; i < count; i++ {
			t := &batch[i]
			stats.trials++
			if t.err != nil {
				stats.skipped++
				stats.lastSkip.index, stats.lastSkip.sample, stats.lastSkip.err = t.index, t.sample, t.err
				e.log.Debug().Int("trial", t.index).Ints("sample", t.sample).Err(t.err).Msg("trial skipped")
			} else if best == nil || t.numInliers > best.numInliers {
				best = &snapshot{
					index:      t.index,
					sample:     append([]int(nil), t.sample...),
					model:      t.model,
					inliers:    append([]bool(nil), t.inliers...),
					numInliers: t.numInliers,
				}
				e.log.Debug().Int("trial", t.index).Ints("sample", t.sample).
					Int("inliers", t.numInliers).Msg("new best candidate")
			}
			if e.shouldStop(best, stats.trials) {
				stats.stoppedEarly = stats.trials < e.opts.MaxTrials
				return best, stats
			}
		}
	}
	return best, stats
}

func (e *estimator) shouldStop(best *snapshot, trials int) bool {
	if best == nil {
		return false
	}
	if e.opts.StopSampleNum > 0 && best.numInliers >= e.opts.StopSampleNum {
		return true
	}
	if e.opts.StopProbability > 0 {
		limit := DynamicMaxTrials(best.numInliers, len(e.src), e.opts.MinSamples, e.opts.StopProbability)
		return float64(trials) >= limit
	}
	return false
}

func (e *estimator) evaluateBatch(batch []trial) {
	if e.opts.Workers <= 1 || len(batch) == 1 {
		for i := range batch {
			e.evaluate(&batch[i])
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i := range batch {
		t := &batch[i]
		g.Go(func() error {
			e.evaluate(t)
			return nil
		})
	}
	_ = g.Wait()
}

// evaluate fits and scores one trial. It only writes to t.
func (e *estimator) evaluate(t *trial) {
	t.model, t.numInliers, t.err = nil, 0, nil
	for i, idx := range t.sample {
		t.subSrc[i] = e.src[idx]
		t.subDst[i] = e.dst[idx]
	}
	if e.opts.IsSampleValid != nil && !e.opts.IsSampleValid(t.subSrc, t.subDst) {
		t.err = errSampleRejected
		return
	}
	model, err := e.model.Estimate(t.subSrc, t.subDst)
	if err != nil {
		t.err = err
		return
	}
	if e.opts.IsModelValid != nil && !e.opts.IsModelValid(model, t.subSrc, t.subDst) {
		t.err = errModelRejected
		return
	}
	t.model = model
	transform.ResidualsInto(t.residuals, model, e.src, e.dst)
	t.numInliers = classify(t.inliers, t.residuals, e.opts.ResidualThreshold)
}

// refine re-estimates best on all of its inliers. When that fails the
// trial candidate is kept.
func (e *estimator) refine(res *Result, best *snapshot) {
	inSrc := make([]geometry.Point2D, 0, best.numInliers)
	inDst := make([]geometry.Point2D, 0, best.numInliers)
	for i, in := range best.inliers {
		if in {
			inSrc = append(inSrc, e.src[i])
			inDst = append(inDst, e.dst[i])
		}
	}

	refit, err := e.model.Estimate(inSrc, inDst)
	if err != nil {
		e.log.Warn().Err(err).Int("inliers", best.numInliers).Msg("refit on inliers failed, keeping trial model")
		res.Transform = best.model
		res.Inliers = best.inliers
		res.NumInliers = best.numInliers
		res.Residuals = transform.Residuals(best.model, e.src, e.dst)
		return
	}

	res.Transform = refit
	res.Refined = true
	res.Residuals = transform.Residuals(refit, e.src, e.dst)
	res.Inliers = make([]bool, len(e.src))
	res.NumInliers = classify(res.Inliers, res.Residuals, e.opts.ResidualThreshold)
}

// classify overwrites mask with residual < threshold and returns the count.
// NaN residuals are outliers.
func classify(mask []bool, residuals []float64, threshold float64) int {
	n := 0
	for i, r := range residuals {
		mask[i] = r < threshold
		if mask[i] {
			n++
		}
	}
	return n
}
