package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ransac-align/internal/config"
	"ransac-align/internal/report"
)

// run executes the CLI with an isolated config file and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		require.NoError(t, config.Default().Save(cfgPath))
	}

	var out bytes.Buffer
	app := newApp(&env{})
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"ransacfit", "-c", cfgPath, "--log-level", "off"}, args...))
	return out.String(), err
}

func TestSynthThenFit(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "pairs.csv")
	truthMask := filepath.Join(dir, "truth.txt")
	fitMask := filepath.Join(dir, "out", "mask.txt")

	_, err := run(t, dir, "synth", "-o", data, "--seed", "4", "--truth-mask", truthMask)
	require.NoError(t, err)

	out, err := run(t, dir, "fit", "--seed", "4", "--max-trials", "200", "--mask", fitMask, "--compare-demo", data)
	require.NoError(t, err)
	assert.Contains(t, out, "=== affine fit ===")
	assert.Contains(t, out, "Inliers: 20 / 30")
	assert.Contains(t, out, "=== Against reference transform ===")

	want, err := os.ReadFile(truthMask)
	require.NoError(t, err)
	got, err := os.ReadFile(fitMask)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
	assert.Equal(t, 30, strings.Count(string(got), "\n"))
}

func TestFitJSON(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "pairs.json")
	_, err := run(t, dir, "synth", "-o", data, "--seed", "9")
	require.NoError(t, err)

	out, err := run(t, dir, "fit", "--model", "similarity", "--workers", "3", "--json", data)
	require.NoError(t, err)

	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "similarity", string(rep.Model))
	assert.Equal(t, 20, rep.Inliers)
	assert.True(t, rep.Robust)
}

func TestFitJSONWithComparison(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "pairs.csv")
	_, err := run(t, dir, "synth", "-o", data, "--seed", "6")
	require.NoError(t, err)

	out, err := run(t, dir, "fit", "--seed", "6", "--json", "--compare-demo", data)
	require.NoError(t, err)

	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep), "output must be a single JSON document")
	require.NotNil(t, rep.Comparison)
	assert.Less(t, rep.Comparison.MaxParam, 1e-6)
	assert.Less(t, rep.Comparison.Translation, 1e-6)

	_, err = run(t, dir, "fit", "--model", "projective", "--compare-demo", data)
	assert.Error(t, err)
}

func TestEstimateIsNotRobust(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "pairs.json")
	_, err := run(t, dir, "synth", "-o", data, "--seed", "2")
	require.NoError(t, err)

	out, err := run(t, dir, "estimate", "--json", data)
	require.NoError(t, err)

	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.False(t, rep.Robust)
	assert.Less(t, rep.Inliers, 20)
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "pairs.json")
	_, err := run(t, dir, "synth", "-o", data)
	require.NoError(t, err)

	_, err = run(t, dir, "fit")
	assert.Error(t, err)

	_, err = run(t, dir, "fit", "--model", "spline", data)
	assert.Error(t, err)

	_, err = run(t, dir, "fit", "--threshold", "-1", data)
	assert.Error(t, err)

	_, err = run(t, dir, "fit", "--min-samples", "31", data)
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "commit")
}
