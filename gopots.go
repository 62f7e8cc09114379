// Package gopots is the public API for imputing missing values in
// multivariate time series with SAITS, Transformer and StemGNN models.
//
// Example:
//
//	backend := gopots.NewBackend()
//	model, _ := gopots.NewModel(cfg, backend)
//	imp, _ := gopots.NewImputer(model, gopots.DefaultTrainConfig(), backend, nil)
//	_ = imp.Fit(ctx, train, val)
//	filled, _ := imp.Impute(ctx, test)
package gopots

import (
	"github.com/sirupsen/logrus"

	"github.com/gopots/gopots/internal/autodiff"
	"github.com/gopots/gopots/internal/backend/cpu"
	"github.com/gopots/gopots/internal/data"
	"github.com/gopots/gopots/internal/imputation"
)

// Backend is the CPU backend with gradient recording used for training.
type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// Dataset holds N samples of T steps and F features; NaN marks a missing value.
type Dataset = data.Dataset

type (
	// ModelConfig selects and sizes an imputation model.
	ModelConfig = imputation.ModelConfig
	// TrainConfig controls Fit.
	TrainConfig = imputation.TrainConfig
	// Model is an imputation network.
	Model = imputation.Model[Backend]
	// Imputer trains a model and fills in missing values.
	Imputer = imputation.Imputer[Backend]
)

// Saving strategies.
const (
	SaveNone   = imputation.SaveNone
	SaveBest   = imputation.SaveBest
	SaveBetter = imputation.SaveBetter
	SaveAll    = imputation.SaveAll
)

var (
	// ErrNotFitted is returned by Impute and Save before Fit or Load.
	ErrNotFitted = imputation.ErrNotFitted
	// ErrNaNLoss is returned when training diverges.
	ErrNaNLoss = imputation.ErrNaNLoss
	// ErrNoGroundTruth is returned when a validation set lacks XOri.
	ErrNoGroundTruth = imputation.ErrNoGroundTruth
	// ErrUnknownModel is returned for a model kind other than SAITS,
	// Transformer or StemGNN.
	ErrUnknownModel = imputation.ErrUnknownModel
)

// NewBackend returns a fresh training backend.
func NewBackend() Backend {
	return autodiff.New(cpu.New())
}

// NewModel builds the model named by cfg.Kind.
func NewModel(cfg ModelConfig, backend Backend) (Model, error) {
	return imputation.NewModel(cfg, backend)
}

// DefaultTrainConfig returns the default training settings.
func DefaultTrainConfig() TrainConfig {
	return imputation.DefaultTrainConfig()
}

// NewImputer wraps model for training. logger may be nil.
func NewImputer(model Model, cfg TrainConfig, backend Backend, logger *logrus.Logger) (*Imputer, error) {
	return imputation.NewImputer(model, cfg, backend, logger)
}

// NewDataset wraps x ([N*T*F], NaN for missing) as a dataset.
func NewDataset(x []float64, n, t, f int) (*Dataset, error) {
	return data.NewDataset(x, n, t, f)
}

// ReadCSV loads a dataset from a long-format CSV file.
func ReadCSV(path string) (*Dataset, error) {
	return data.ReadCSVFile(path)
}

// WriteCSV stores [N*T*F] values as a long-format CSV file.
func WriteCSV(path string, values []float64, n, t, f int) error {
	return data.WriteCSVFile(path, values, n, t, f)
}

// RandomWalk generates a standardized random-walk dataset with a fraction
// of values removed; the complete series is kept as ground truth.
func RandomWalk(samples, steps, features int, missingRate float64, seed int64) (*Dataset, error) {
	return data.RandomWalk(samples, steps, features, missingRate, seed)
}
