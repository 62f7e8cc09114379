// Package config loads the YAML configuration of a gopots run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/gopots/gopots/internal/imputation"
)

// Config captures everything a train or impute run needs.
type Config struct {
	Model    imputation.ModelConfig `yaml:"model"`
	Training imputation.TrainConfig `yaml:"training"`
	Data     DataConfig             `yaml:"data"`
	Logging  LoggingConfig          `yaml:"logging"`
}

// DataConfig locates the datasets. Without a training CSV a synthetic
// random-walk dataset is generated instead.
type DataConfig struct {
	Train  string `yaml:"train"`
	Val    string `yaml:"val"`
	Test   string `yaml:"test"`
	Output string `yaml:"output"`

	Synthetic SyntheticConfig `yaml:"synthetic"`
}

// SyntheticConfig sizes the generated random-walk dataset. Steps and
// features come from the model section.
type SyntheticConfig struct {
	Samples      int     `yaml:"samples"`
	MissingRate  float64 `yaml:"missing_rate"`
	ValFraction  float64 `yaml:"val_fraction"`
	TestFraction float64 `yaml:"test_fraction"`
	Seed         int64   `yaml:"seed"`
}

// LoggingConfig selects the log level and format ("text" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Overrides captures CLI supplied values; zero values are ignored.
type Overrides struct {
	Model     string
	Epochs    int
	BatchSize int
	LR        float64
	Seed      int64
	Train     string
	Output    string
	SavePath  string
	LogLevel  string
}

// Default returns a SAITS configuration on synthetic data.
func Default() *Config {
	return &Config{
		Model: imputation.ModelConfig{
			Kind:                  "SAITS",
			NSteps:                24,
			NFeatures:             10,
			NLayers:               1,
			DModel:                128,
			NHeads:                2,
			DK:                    64,
			DV:                    64,
			DFFN:                  64,
			Dropout:               0.1,
			DiagonalAttentionMask: true,
			NStacks:               2,
			LeakyRate:             0.2,
			ORTWeight:             1,
			MITWeight:             1,
			TrainingLoss:          "MAE",
		},
		Training: imputation.TrainConfig{
			Epochs:           10,
			BatchSize:        32,
			Optimizer:        "AdamW",
			LR:               0.001,
			WeightDecay:      1e-5,
			MITRate:          0.2,
			ValidationMetric: "MSE",
			SavingStrategy:   imputation.SaveBest,
			SavingPath:       "runs",
		},
		Data: DataConfig{
			Synthetic: SyntheticConfig{
				Samples:      200,
				MissingRate:  0.1,
				ValFraction:  0.2,
				TestFraction: 0.2,
				Seed:         1,
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML config from path on top of Default and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r on top of Default and validates it. Unknown
// keys are errors.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c with every non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Model != "" {
		c.Model.Kind = o.Model
	}
	if o.Epochs > 0 {
		c.Training.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.Training.BatchSize = o.BatchSize
	}
	if o.LR > 0 {
		c.Training.LR = o.LR
	}
	if o.Seed != 0 {
		c.Training.Seed = o.Seed
		c.Data.Synthetic.Seed = o.Seed
	}
	if o.Train != "" {
		c.Data.Train = o.Train
	}
	if o.Output != "" {
		c.Data.Output = o.Output
	}
	if o.SavePath != "" {
		c.Training.SavingPath = o.SavePath
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Training.Validate(); err != nil {
		return err
	}
	if c.Data.Train == "" {
		s := c.Data.Synthetic
		if s.Samples <= 0 {
			return fmt.Errorf("data.synthetic.samples must be > 0 (got %d)", s.Samples)
		}
		if s.MissingRate < 0 || s.MissingRate >= 1 {
			return fmt.Errorf("data.synthetic.missing_rate must be in [0, 1) (got %v)", s.MissingRate)
		}
		if s.ValFraction <= 0 || s.TestFraction <= 0 || s.ValFraction+s.TestFraction >= 1 {
			return fmt.Errorf("data.synthetic fractions must be positive and sum below 1")
		}
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}
	return nil
}

// NewLogger builds a logger writing to out with the configured level and
// format.
func (c LoggingConfig) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	if strings.EqualFold(c.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
