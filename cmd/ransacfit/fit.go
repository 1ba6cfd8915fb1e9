package main

import (
	"bufio"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"ransac-align/internal/correspondence"
	"ransac-align/internal/ransac"
	"ransac-align/internal/report"
	"ransac-align/pkg/geometry"
)

func inputSet(c *cli.Context) (correspondence.Set, error) {
	if c.NArg() != 1 {
		return correspondence.Set{}, errors.Errorf("%s: expected one correspondence file, got %d arguments", c.Command.Name, c.NArg())
	}
	return correspondence.Load(c.Args().First())
}

func (e *env) fitAction(c *cli.Context) error {
	set, err := inputSet(c)
	if err != nil {
		return err
	}
	cfg, err := e.applyFlags(c)
	if err != nil {
		return err
	}
	model, err := cfg.ModelFor()
	if err != nil {
		return err
	}

	e.log.Info().
		Str("file", c.Args().First()).
		Int("pairs", set.Len()).
		Str("model", string(model.Kind())).
		Msg("fitting")
	res, err := ransac.FitSet(model, set, cfg.RansacOptions(e.log))
	if err != nil {
		return err
	}

	rep, err := report.FromResult(res, set)
	if err != nil {
		return err
	}
	if c.Bool(flagCompareDemo) {
		est, ok := res.Transform.(geometry.AffineTransform)
		if !ok {
			return errors.Errorf("--%s needs an affine-family model, got %s", flagCompareDemo, res.Kind)
		}
		d := report.Compare(correspondence.DemoTransform(), est)
		rep.Comparison = &d
	}
	if err := writeReport(c.App.Writer, rep, c.Bool(flagJSON)); err != nil {
		return err
	}

	if path := c.String(flagMask); path != "" {
		if err := saveMask(path, res.Inliers); err != nil {
			return err
		}
		e.log.Info().Str("file", path).Int("inliers", res.NumInliers).Msg("inlier mask written")
	}
	return nil
}

func (e *env) estimateAction(c *cli.Context) error {
	set, err := inputSet(c)
	if err != nil {
		return err
	}
	cfg, err := e.applyFlags(c)
	if err != nil {
		return err
	}
	model, err := cfg.ModelFor()
	if err != nil {
		return err
	}

	t, err := model.Estimate(set.Src, set.Dst)
	if err != nil {
		return errors.Wrapf(err, "%s least-squares fit", model.Kind())
	}
	rep, err := report.FromTransform(model.Kind(), t, set, cfg.ResidualThreshold)
	if err != nil {
		return err
	}
	return writeReport(c.App.Writer, rep, c.Bool(flagJSON))
}

func (e *env) synthAction(c *cli.Context) error {
	opts := correspondence.DefaultSynthOptions()
	opts.Inliers = c.Int(flagInliers)
	opts.Outliers = c.Int(flagOutliers)
	opts.Noise = c.Float64(flagNoise)

	seed := e.cfg.Seed
	if c.IsSet(flagSeed) {
		seed = c.Int64(flagSeed)
	}
	set, truth, err := correspondence.Synthesize(opts, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}

	out := c.String(flagOutput)
	if err := correspondence.Save(out, set); err != nil {
		return err
	}
	e.log.Info().
		Str("file", out).
		Int("inliers", opts.Inliers).
		Int("outliers", opts.Outliers).
		Int64("seed", seed).
		Msg("synthetic correspondences written")

	if path := c.String(flagTruthMask); path != "" {
		return saveMask(path, truth)
	}
	return nil
}

func writeReport(w io.Writer, rep *report.Report, asJSON bool) error {
	if asJSON {
		return rep.WriteJSON(w)
	}
	return rep.WriteText(w)
}

func saveMask(path string, mask []bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create mask directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create mask file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, in := range mask {
		b := byte('0')
		if in {
			b = '1'
		}
		w.WriteByte(b)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "write mask")
	}
	return errors.Wrap(f.Close(), "close mask file")
}
