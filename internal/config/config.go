// Package config loads fitting defaults from a YAML file.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"ransac-align/internal/logger"
	"ransac-align/internal/ransac"
	"ransac-align/internal/transform"
)

const (
	appDir     = "ransac-align"
	configFile = "config.yaml"
)

// Config holds the settings shared by the command-line tools. Fields absent
// from a file keep their defaults.
type Config struct {
	Model             string  `yaml:"model"`
	MinSamples        int     `yaml:"min_samples"`
	ResidualThreshold float64 `yaml:"residual_threshold"`
	MaxTrials         int     `yaml:"max_trials"`
	StopProbability   float64 `yaml:"stop_probability"`
	StopSampleNum     int     `yaml:"stop_sample_num"`
	Workers           int     `yaml:"workers"`
	Seed              int64   `yaml:"seed"`
	LogLevel          string  `yaml:"log_level"`
}

// Default returns an affine fit with threshold 2 and 100 trials.
func Default() Config {
	opts := ransac.DefaultOptions()
	return Config{
		Model:             string(transform.KindAffine),
		ResidualThreshold: opts.ResidualThreshold,
		MaxTrials:         opts.MaxTrials,
		LogLevel:          "info",
	}
}

// DefaultPath returns ~/.config/ransac-align/config.yaml or the platform
// equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, appDir, configFile)
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, cfg.Validate()
}

// LoadDefault reads DefaultPath. A missing file yields the defaults.
func LoadDefault() (Config, error) {
	cfg, err := Load(DefaultPath())
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes cfg as YAML, creating the parent directory.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

// Validate checks the fields that can be checked without data. Sample size
// against the number of pairs is left to the estimator.
func (c Config) Validate() error {
	model, err := transform.ParseKind(c.Model)
	if err != nil {
		return err
	}
	m, err := transform.ForKind(model)
	if err != nil {
		return err
	}
	switch {
	case c.MinSamples != 0 && c.MinSamples < m.MinSamples():
		return errors.Errorf("min_samples %d is below the %s minimum of %d", c.MinSamples, model, m.MinSamples())
	case !(c.ResidualThreshold > 0):
		return errors.Errorf("residual_threshold must be positive, got %g", c.ResidualThreshold)
	case c.MaxTrials < 1:
		return errors.Errorf("max_trials must be at least 1, got %d", c.MaxTrials)
	case c.StopProbability < 0 || c.StopProbability > 1:
		return errors.Errorf("stop_probability must be in [0, 1], got %g", c.StopProbability)
	case c.StopSampleNum < 0:
		return errors.Errorf("stop_sample_num must not be negative, got %d", c.StopSampleNum)
	case c.Workers < 0:
		return errors.Errorf("workers must not be negative, got %d", c.Workers)
	}
	_, err = logger.ParseLevel(c.LogLevel)
	return err
}

// ModelFor returns the estimator named by Model.
func (c Config) ModelFor() (transform.Model, error) {
	kind, err := transform.ParseKind(c.Model)
	if err != nil {
		return nil, err
	}
	return transform.ForKind(kind)
}

// Level returns the parsed log level.
func (c Config) Level() zerolog.Level {
	lvl, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// RansacOptions converts the config into estimator options using log.
func (c Config) RansacOptions(log zerolog.Logger) ransac.Options {
	opts := ransac.DefaultOptions()
	opts.MinSamples = c.MinSamples
	opts.ResidualThreshold = c.ResidualThreshold
	opts.MaxTrials = c.MaxTrials
	opts.StopProbability = c.StopProbability
	opts.StopSampleNum = c.StopSampleNum
	opts.Workers = c.Workers
	opts.Seed = c.Seed
	opts.Logger = log
	return opts
}
