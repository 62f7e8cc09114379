package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopots/gopots/internal/data"
)

const testConfig = `
model:
  kind: Transformer
  n_steps: 6
  n_features: 3
  n_layers: 1
  d_model: 8
  n_heads: 2
  d_k: 4
  d_v: 4
  d_ffn: 8
  dropout: 0
training:
  epochs: 1
  batch_size: 8
data:
  synthetic:
    samples: 20
    missing_rate: 0.2
logging:
  level: error
`

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return path
}

func TestTrainThenImpute(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	saveDir := filepath.Join(dir, "runs")
	testOut := filepath.Join(dir, "test_imputed.csv")

	err := runTrain(context.Background(), []string{
		"-config", cfgPath, "-save-dir", saveDir, "-output", testOut, "-seed", "3",
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(saveDir, "Transformer.pots"))

	written, err := data.ReadCSVFile(testOut)
	require.NoError(t, err)
	assert.Equal(t, 6, written.T)
	assert.Equal(t, 3, written.F)
	assert.Zero(t, written.MissingRate())

	input, err := data.RandomWalk(4, 6, 3, 0.3, 9)
	require.NoError(t, err)
	inPath := filepath.Join(dir, "input.csv")
	require.NoError(t, data.WriteCSVFile(inPath, input.X, input.N, input.T, input.F))
	outPath := filepath.Join(dir, "imputed.csv")

	err = runImpute(context.Background(), []string{
		"-config", cfgPath, "-weights", filepath.Join(saveDir, "Transformer.pots"),
		"-input", inPath, "-output", outPath,
	})
	require.NoError(t, err)

	imputed, err := data.ReadCSVFile(outPath)
	require.NoError(t, err)
	require.Len(t, imputed.X, len(input.X))
	for i, v := range imputed.X {
		assert.False(t, math.IsNaN(v))
		if !math.IsNaN(input.X[i]) {
			assert.InDelta(t, input.X[i], v, 1e-12)
		}
	}
}

func TestImputeErrors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	assert.Error(t, runImpute(context.Background(), []string{"-config", cfgPath}), "input is required")

	input, err := data.RandomWalk(2, 6, 3, 0.3, 1)
	require.NoError(t, err)
	inPath := filepath.Join(dir, "input.csv")
	require.NoError(t, data.WriteCSVFile(inPath, input.X, input.N, input.T, input.F))
	assert.Error(t, runImpute(context.Background(), []string{
		"-config", cfgPath, "-input", inPath, "-weights", filepath.Join(dir, "missing.pots"),
	}))
}

func TestTrainRejectsBadConfig(t *testing.T) {
	assert.Error(t, runTrain(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "none.yaml")}))
	assert.Error(t, runTrain(context.Background(), []string{"-model", "BRITS"}))
}

func TestRunExitCodes(t *testing.T) {
	assert.Equal(t, 2, run(nil))
	assert.Equal(t, 2, run([]string{"serve"}))
	assert.Equal(t, 0, run([]string{"version"}))
	assert.Equal(t, 1, run([]string{"impute"}))
}
