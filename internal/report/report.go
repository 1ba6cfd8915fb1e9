// Package report summarizes a fitted transform: its parameters, how well it
// explains the inliers, and how much of the source area the inliers cover.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ransac-align/internal/correspondence"
	"ransac-align/internal/ransac"
	"ransac-align/internal/transform"
	"ransac-align/pkg/geometry"
)

// Stats describes a set of residuals.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	RMSE   float64 `json:"rmse"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// Decomposition is an affine transform split into scale, rotation, shear
// and translation. Angles are in radians.
type Decomposition struct {
	ScaleX   float64 `json:"scale_x"`
	ScaleY   float64 `json:"scale_y"`
	Rotation float64 `json:"rotation"`
	Shear    float64 `json:"shear"`
	TX       float64 `json:"tx"`
	TY       float64 `json:"ty"`
}

// Report is the printable summary of a fit.
type Report struct {
	Model         transform.Kind `json:"model"`
	Params        []float64      `json:"params"`
	Decomposition *Decomposition `json:"decomposition,omitempty"`

	Correspondences int     `json:"correspondences"`
	Inliers         int     `json:"inliers"`
	InlierRatio     float64 `json:"inlier_ratio"`
	InlierIndices   []int   `json:"inlier_indices"`
	// Coverage is the convex-hull area of the inlier sources over that of
	// all sources.
	Coverage float64 `json:"coverage"`

	Residuals Stats `json:"residuals"`

	// Comparison against a known transform, when one was supplied.
	Comparison *Diff `json:"comparison,omitempty"`

	// Search details, absent for a plain least-squares fit.
	Trials       int  `json:"trials,omitempty"`
	Skipped      int  `json:"skipped,omitempty"`
	BestTrial    int  `json:"best_trial,omitempty"`
	Refined      bool `json:"refined"`
	StoppedEarly bool `json:"stopped_early,omitempty"`
	Robust       bool `json:"robust"`
}

// FromResult builds a report from a robust fit over set.
func FromResult(res *ransac.Result, set correspondence.Set) (*Report, error) {
	if res == nil {
		return nil, errors.New("report: nil result")
	}
	if len(res.Inliers) != set.Len() || len(res.Residuals) != set.Len() {
		return nil, errors.Errorf("report: result covers %d pairs, set has %d", len(res.Inliers), set.Len())
	}
	r := build(res.Kind, res.Transform, set, res.Residuals, res.Inliers)
	r.Trials = res.Trials
	r.Skipped = res.Skipped
	r.BestTrial = res.BestTrial
	r.Refined = res.Refined
	r.StoppedEarly = res.StoppedEarly
	r.Robust = true
	return r, nil
}

// FromTransform reports a transform fitted without outlier rejection. Pairs
// with residual below threshold count as inliers.
func FromTransform(kind transform.Kind, t transform.Transform, set correspondence.Set, threshold float64) (*Report, error) {
	if t == nil {
		return nil, errors.New("report: nil transform")
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	residuals := transform.Residuals(t, set.Src, set.Dst)
	mask := make([]bool, len(residuals))
	for i, r := range residuals {
		mask[i] = r < threshold
	}
	r := build(kind, t, set, residuals, mask)
	r.Refined = true
	return r, nil
}

func build(kind transform.Kind, t transform.Transform, set correspondence.Set, residuals []float64, mask []bool) *Report {
	r := &Report{
		Model:           kind,
		Params:          t.Params(),
		Correspondences: set.Len(),
		InlierIndices:   []int{},
	}
	if a, ok := t.(geometry.AffineTransform); ok {
		d := Decompose(a)
		r.Decomposition = &d
	}

	var inlierRes []float64
	var inlierSrc []geometry.Point2D
	for i, in := range mask {
		if !in {
			continue
		}
		r.InlierIndices = append(r.InlierIndices, i)
		inlierRes = append(inlierRes, residuals[i])
		inlierSrc = append(inlierSrc, set.Src[i])
	}
	r.Inliers = len(r.InlierIndices)
	if r.Correspondences > 0 {
		r.InlierRatio = float64(r.Inliers) / float64(r.Correspondences)
	}
	r.Residuals = Summarize(inlierRes)
	r.Coverage = Coverage(inlierSrc, set.Src)
	return r
}

// Decompose splits a into scale, rotation, shear and translation such that
// geometry.NewAffine(d.ScaleX, d.ScaleY, d.Rotation, d.Shear, d.TX, d.TY)
// reproduces it.
func Decompose(a geometry.AffineTransform) Decomposition {
	sx, sy := a.ScaleXY()
	tx, ty := a.TranslationXY()
	return Decomposition{
		ScaleX:   sx,
		ScaleY:   sy,
		Rotation: a.RotationAngle(),
		Shear:    a.ShearAngle(),
		TX:       tx,
		TY:       ty,
	}
}

// Summarize computes residual statistics. StdDev is the sample standard
// deviation and is zero for fewer than two values.
func Summarize(residuals []float64) Stats {
	n := len(residuals)
	if n == 0 {
		return Stats{}
	}
	s := Stats{
		Count: n,
		Max:   floats.Max(residuals),
		RMSE:  math.Sqrt(floats.Dot(residuals, residuals) / float64(n)),
	}
	if n > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(residuals, nil)
	} else {
		s.Mean = residuals[0]
	}

	sorted := append([]float64(nil), residuals...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		s.Median = sorted[n/2]
	} else {
		s.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return s
}

// Coverage returns the convex-hull area of subset over that of all, or 0
// when all spans no area.
func Coverage(subset, all []geometry.Point2D) float64 {
	total := geometry.PolygonArea(geometry.ConvexHull(all))
	if total <= 0 {
		return 0
	}
	return geometry.PolygonArea(geometry.ConvexHull(subset)) / total
}

// Diff is the parameter-wise absolute difference between two affine
// transforms.
type Diff struct {
	Params      []float64 `json:"params"`
	MaxParam    float64   `json:"max_param"`
	Rotation    float64   `json:"rotation"`
	Translation float64   `json:"translation"`
}

// Compare measures how far estimate is from truth.
func Compare(truth, estimate geometry.AffineTransform) Diff {
	tp, ep := truth.Params(), estimate.Params()
	d := Diff{Params: make([]float64, len(tp))}
	floats.SubTo(d.Params, tp, ep)
	for i, v := range d.Params {
		d.Params[i] = math.Abs(v)
	}
	d.MaxParam = floats.Max(d.Params)

	rot := math.Remainder(truth.RotationAngle()-estimate.RotationAngle(), 2*math.Pi)
	d.Rotation = math.Abs(rot)
	ttx, tty := truth.TranslationXY()
	etx, ety := estimate.TranslationXY()
	d.Translation = math.Hypot(ttx-etx, tty-ety)
	return d
}

// WriteJSON writes r as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(r), "encode report")
}

// WriteText writes r in a human-readable layout.
func (r *Report) WriteText(w io.Writer) error {
	p := &printer{w: w}
	p.printf("=== %s fit ===\n", r.Model)
	if r.Robust {
		p.printf("Trials: %d (%d skipped, best #%d", r.Trials, r.Skipped, r.BestTrial)
		if r.StoppedEarly {
			p.printf(", stopped early")
		}
		p.printf(")\n")
	}
	p.printf("Inliers: %d / %d (%.1f%%)\n", r.Inliers, r.Correspondences, 100*r.InlierRatio)
	p.printf("Coverage: %.1f%%\n", 100*r.Coverage)
	if !r.Refined {
		p.printf("Refit on inliers failed; showing the best sample's model\n")
	}

	p.printf("\n=== Parameters ===\n")
	if d := r.Decomposition; d != nil {
		p.printf("Scale: (%.6f, %.6f)\n", d.ScaleX, d.ScaleY)
		p.printf("Rotation: %.4f°\n", d.Rotation*180/math.Pi)
		p.printf("Shear: %.4f°\n", d.Shear*180/math.Pi)
		p.printf("Translation: (%.3f, %.3f)\n", d.TX, d.TY)
	}
	p.printf("Matrix:")
	for _, v := range r.Params {
		p.printf(" %.6g", v)
	}
	p.printf("\n")

	p.printf("\n=== Inlier residuals ===\n")
	s := r.Residuals
	p.printf("Mean: %.4f  StdDev: %.4f\n", s.Mean, s.StdDev)
	p.printf("RMSE: %.4f  Median: %.4f  Max: %.4f\n", s.RMSE, s.Median, s.Max)

	if d := r.Comparison; d != nil {
		p.printf("\n=== Against reference transform ===\n")
		p.printf("Max param error: %.6g\n", d.MaxParam)
		p.printf("Rotation error: %.6g rad\n", d.Rotation)
		p.printf("Translation error: %.6g\n", d.Translation)
	}
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
