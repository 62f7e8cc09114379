package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "SAITS", cfg.Model.Kind)
	assert.Equal(t, 128, cfg.Model.DModel)
	assert.Equal(t, "AdamW", cfg.Training.Optimizer)
}

func TestParseMergesOverDefault(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
model:
  kind: StemGNN
  n_steps: 12
  n_stacks: 3
training:
  epochs: 4
  saving_strategy: better
logging:
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, "StemGNN", cfg.Model.Kind)
	assert.Equal(t, 12, cfg.Model.NSteps)
	assert.Equal(t, 3, cfg.Model.NStacks)
	assert.Equal(t, 10, cfg.Model.NFeatures, "unset keys keep defaults")
	assert.Equal(t, 4, cfg.Training.Epochs)
	assert.Equal(t, "better", cfg.Training.SavingStrategy)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":    "model:\n  kind: SAITS\n  n_layer: 2\n",
		"bad type":       "training:\n  epochs: many\n",
		"unknown model":  "model:\n  kind: GRU-D\n",
		"bad level":      "logging:\n  level: loud\n",
		"bad format":     "logging:\n  format: xml\n",
		"bad fractions":  "data:\n  synthetic:\n    val_fraction: 0.6\n    test_fraction: 0.5\n",
		"no samples":     "data:\n  synthetic:\n    samples: 0\n",
		"strategy path":  "training:\n  saving_path: \"\"\n",
		"missing rate":   "data:\n  synthetic:\n    missing_rate: 1\n",
		"bad validation": "training:\n  validation_metric: AUC\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training:\n  epochs: 3\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Training.Epochs)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{
		Model: "Transformer", Epochs: 7, BatchSize: 16, LR: 0.01, Seed: 9,
		Train: "train.csv", Output: "out.csv", SavePath: "models", LogLevel: "debug",
	})
	assert.Equal(t, "Transformer", cfg.Model.Kind)
	assert.Equal(t, 7, cfg.Training.Epochs)
	assert.Equal(t, 16, cfg.Training.BatchSize)
	assert.Equal(t, 0.01, cfg.Training.LR)
	assert.Equal(t, int64(9), cfg.Training.Seed)
	assert.Equal(t, int64(9), cfg.Data.Synthetic.Seed)
	assert.Equal(t, "train.csv", cfg.Data.Train)
	assert.Equal(t, "out.csv", cfg.Data.Output)
	assert.Equal(t, "models", cfg.Training.SavingPath)
	assert.Equal(t, "debug", cfg.Logging.Level)

	before := *cfg
	cfg.ApplyOverrides(Overrides{})
	assert.Equal(t, before, *cfg)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.WithField("k", 1).Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = LoggingConfig{Level: "nope"}.NewLogger(&buf)
	assert.Error(t, err)
}
