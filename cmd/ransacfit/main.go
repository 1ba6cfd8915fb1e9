// Command ransacfit robustly fits a 2D transform to point correspondences
// read from a JSON or CSV file and prints the fitted model and its inliers.
package main

import (
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"ransac-align/internal/config"
	"ransac-align/internal/logger"
	"ransac-align/internal/version"
)

const (
	// Global flags.
	flagConfig   = "config"
	flagLogLevel = "log-level"
	flagLogJSON  = "log-json"

	// Fit flags.
	flagModel           = "model"
	flagThreshold       = "threshold"
	flagMaxTrials       = "max-trials"
	flagMinSamples      = "min-samples"
	flagStopProbability = "stop-probability"
	flagStopSampleNum   = "stop-sample-num"
	flagWorkers         = "workers"
	flagSeed            = "seed"
	flagJSON            = "json"
	flagMask            = "mask"
	flagCompareDemo     = "compare-demo"

	// Synth flags.
	flagOutput    = "output"
	flagInliers   = "inliers"
	flagOutliers  = "outliers"
	flagNoise     = "noise"
	flagTruthMask = "truth-mask"
)

// env is the state shared by every subcommand, set up in Before.
type env struct {
	cfg config.Config
	log zerolog.Logger
}

func main() {
	if err := newApp(&env{}).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(e *env) *cli.App {
	return &cli.App{
		Name:    "ransacfit",
		Usage:   "fit 2D transforms to point correspondences with outliers",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load defaults from `FILE` instead of the user config",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "log level (debug, info, warn, error, off)",
			},
			&cli.BoolFlag{
				Name:  flagLogJSON,
				Usage: "log JSON lines instead of console output",
			},
		},
		Before: e.setup,
		Commands: []*cli.Command{
			{
				Name:      "fit",
				Usage:     "robustly fit a model and report its inliers",
				ArgsUsage: "<correspondences.json|csv>",
				Flags:     append(modelFlags(), fitFlags()...),
				Action:    e.fitAction,
			},
			{
				Name:      "estimate",
				Usage:     "least-squares fit on all correspondences, without outlier rejection",
				ArgsUsage: "<correspondences.json|csv>",
				Flags: append(modelFlags(),
					&cli.BoolFlag{Name: flagJSON, Usage: "print the report as JSON"},
				),
				Action: e.estimateAction,
			},
			{
				Name:      "synth",
				Usage:     "write synthetic correspondences generated from the demo transform",
				ArgsUsage: " ",
				Flags:     synthFlags(),
				Action:    e.synthAction,
			},
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(c *cli.Context) error {
					_, err := c.App.Writer.Write([]byte(version.String() + "\n"))
					return err
				},
			},
		},
	}
}

func (e *env) setup(c *cli.Context) error {
	var err error
	if path := c.String(flagConfig); path != "" {
		e.cfg, err = config.Load(path)
	} else {
		e.cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}

	level := e.cfg.Level()
	if c.IsSet(flagLogLevel) {
		if level, err = logger.ParseLevel(c.String(flagLogLevel)); err != nil {
			return err
		}
		e.cfg.LogLevel = c.String(flagLogLevel)
	}
	e.log = logger.New(c.App.ErrWriter, level, !c.Bool(flagLogJSON))
	e.log.Debug().Str("model", e.cfg.Model).Msg("configuration loaded")
	return nil
}

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagModel,
			Aliases: []string{"m"},
			Usage:   "model kind: affine, similarity, euclidean or projective",
		},
		&cli.Float64Flag{
			Name:    flagThreshold,
			Aliases: []string{"t"},
			Usage:   "maximum residual of an inlier, in destination units",
		},
	}
}

func fitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: flagMaxTrials, Usage: "maximum number of random trials"},
		&cli.IntFlag{Name: flagMinSamples, Usage: "pairs per trial (default: the model minimum)"},
		&cli.Float64Flag{Name: flagStopProbability, Usage: "stop once an outlier-free sample was drawn with this probability"},
		&cli.IntFlag{Name: flagStopSampleNum, Usage: "stop once a candidate has this many inliers"},
		&cli.IntFlag{Name: flagWorkers, Usage: "evaluate trials on this many goroutines"},
		&cli.Int64Flag{Name: flagSeed, Usage: "random seed"},
		&cli.BoolFlag{Name: flagJSON, Usage: "print the report as JSON"},
		&cli.StringFlag{Name: flagMask, Usage: "write the inlier mask to `FILE`, one 0 or 1 per line"},
		&cli.BoolFlag{Name: flagCompareDemo, Usage: "compare the fit against the transform used by synth"},
	}
}

func synthFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     flagOutput,
			Aliases:  []string{"o"},
			Usage:    "write correspondences to `FILE` (.json or .csv)",
			Required: true,
		},
		&cli.IntFlag{Name: flagInliers, Value: 20, Usage: "number of exact matches"},
		&cli.IntFlag{Name: flagOutliers, Value: 10, Usage: "number of displaced matches"},
		&cli.Float64Flag{Name: flagNoise, Usage: "Gaussian noise sigma added to destinations"},
		&cli.Int64Flag{Name: flagSeed, Usage: "random seed"},
		&cli.StringFlag{Name: flagTruthMask, Usage: "write the true inlier mask to `FILE`"},
	}
}

// applyFlags overrides config values with the flags given on the command line.
func (e *env) applyFlags(c *cli.Context) (config.Config, error) {
	cfg := e.cfg
	if c.IsSet(flagModel) {
		cfg.Model = c.String(flagModel)
	}
	if c.IsSet(flagThreshold) {
		cfg.ResidualThreshold = c.Float64(flagThreshold)
	}
	if c.IsSet(flagMaxTrials) {
		cfg.MaxTrials = c.Int(flagMaxTrials)
	}
	if c.IsSet(flagMinSamples) {
		cfg.MinSamples = c.Int(flagMinSamples)
	}
	if c.IsSet(flagStopProbability) {
		cfg.StopProbability = c.Float64(flagStopProbability)
	}
	if c.IsSet(flagStopSampleNum) {
		cfg.StopSampleNum = c.Int(flagStopSampleNum)
	}
	if c.IsSet(flagWorkers) {
		cfg.Workers = c.Int(flagWorkers)
	}
	if c.IsSet(flagSeed) {
		cfg.Seed = c.Int64(flagSeed)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid settings")
	}
	return cfg, nil
}
