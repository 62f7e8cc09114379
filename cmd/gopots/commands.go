package main

import (
	"context"
	"errors"
	"flag"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/gopots/gopots/internal/autodiff"
	"github.com/gopots/gopots/internal/backend/cpu"
	"github.com/gopots/gopots/internal/config"
	"github.com/gopots/gopots/internal/data"
	"github.com/gopots/gopots/internal/imputation"
	"github.com/gopots/gopots/internal/metrics"
)

type backendT = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func loadConfig(path string, o config.Overrides) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyOverrides(o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newImputer(cfg *config.Config, logger *logrus.Logger) (*imputation.Imputer[backendT], error) {
	backend := autodiff.New(cpu.New())
	model, err := imputation.NewModel(cfg.Model, backend)
	if err != nil {
		return nil, err
	}
	return imputation.NewImputer(model, cfg.Training, backend, logger)
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config (defaults apply when empty)")
	var o config.Overrides
	fs.StringVar(&o.Model, "model", "", "Model kind: SAITS, Transformer or StemGNN")
	fs.IntVar(&o.Epochs, "epochs", 0, "Override training epochs")
	fs.IntVar(&o.BatchSize, "batch-size", 0, "Override batch size")
	fs.Float64Var(&o.LR, "lr", 0, "Override learning rate")
	fs.Int64Var(&o.Seed, "seed", 0, "Override random seed")
	fs.StringVar(&o.Train, "train", "", "Training CSV (synthetic data when empty)")
	fs.StringVar(&o.Output, "output", "", "Write the imputed test set to this CSV")
	fs.StringVar(&o.SavePath, "save-dir", "", "Directory for saved models")
	fs.StringVar(&o.LogLevel, "log-level", "", "Log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, o)
	if err != nil {
		return err
	}
	logger, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	train, val, test, err := loadData(cfg)
	if err != nil {
		return err
	}
	imp, err := newImputer(cfg, logger)
	if err != nil {
		return err
	}
	log := logger.WithFields(logrus.Fields{"run_id": imp.RunID(), "model": imp.Model().Name()})
	log.WithField("train_samples", train.N).Info("Loaded data")

	if err := imp.Fit(ctx, train, val); err != nil {
		return err
	}
	loss, epoch := imp.BestLoss()
	log.WithFields(logrus.Fields{"best_loss": loss, "best_epoch": epoch}).Info("Training finished")

	if test == nil {
		return nil
	}
	imputed, err := imp.Impute(ctx, test)
	if err != nil {
		return err
	}
	if test.XOri != nil {
		if err := report(log, imputed, test); err != nil {
			return err
		}
	}
	if cfg.Data.Output != "" {
		if err := data.WriteCSVFile(cfg.Data.Output, imputed, test.N, test.T, test.F); err != nil {
			return err
		}
		log.WithField("path", cfg.Data.Output).Info("Wrote imputed test set")
	}
	return nil
}

func runImpute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("impute", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to the YAML config used for training")
	weights := fs.String("weights", "", "Saved model (.pots)")
	input := fs.String("input", "", "CSV with missing values")
	output := fs.String("output", "", "Destination CSV (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("-input is required")
	}

	cfg, err := loadConfig(*configPath, config.Overrides{})
	if err != nil {
		return err
	}
	logger, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	d, err := data.ReadCSVFile(*input)
	if err != nil {
		return err
	}
	imp, err := newImputer(cfg, logger)
	if err != nil {
		return err
	}
	if *weights == "" {
		*weights = filepath.Join(cfg.Training.SavingPath, imp.Model().Name()+".pots")
	}
	if err := imp.Load(*weights); err != nil {
		return err
	}
	imputed, err := imp.Impute(ctx, d)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"samples":      d.N,
		"missing_rate": d.MissingRate(),
	}).Info("Imputed")

	if *output == "" {
		return data.WriteCSV(os.Stdout, imputed, d.N, d.T, d.F)
	}
	return data.WriteCSVFile(*output, imputed, d.N, d.T, d.F)
}

// loadData reads the configured CSV files or generates a random-walk
// dataset split into train, validation and test parts.
func loadData(cfg *config.Config) (train, val, test *data.Dataset, err error) {
	if cfg.Data.Train == "" {
		s := cfg.Data.Synthetic
		d, err := data.RandomWalk(s.Samples, cfg.Model.NSteps, cfg.Model.NFeatures, s.MissingRate, s.Seed)
		if err != nil {
			return nil, nil, nil, err
		}
		return data.SplitTrainValTest(d, s.ValFraction, s.TestFraction)
	}
	if train, err = data.ReadCSVFile(cfg.Data.Train); err != nil {
		return nil, nil, nil, err
	}
	if cfg.Data.Val != "" {
		if val, err = data.ReadCSVFile(cfg.Data.Val); err != nil {
			return nil, nil, nil, err
		}
		// Validation needs held-out values to score against.
		val.XOri = val.X
		rng := newRand(cfg.Training.Seed)
		val.X = data.MCAR(val.XOri, cfg.Training.MITRate, rng)
	}
	if cfg.Data.Test != "" {
		if test, err = data.ReadCSVFile(cfg.Data.Test); err != nil {
			return nil, nil, nil, err
		}
	}
	return train, val, test, nil
}

// report logs the error on the artificially missing test values.
func report(log *logrus.Entry, imputed []float64, test *data.Dataset) error {
	mask := make([]float64, len(test.X))
	target := make([]float64, len(test.X))
	for i, v := range test.X {
		if math.IsNaN(v) && !math.IsNaN(test.XOri[i]) {
			mask[i] = 1
			target[i] = test.XOri[i]
		}
	}
	mae, err := metrics.CalcMAE(imputed, target, mask)
	if err != nil {
		return err
	}
	mse, err := metrics.CalcMSE(imputed, target, mask)
	if err != nil {
		return err
	}
	mre, err := metrics.CalcMRE(imputed, target, mask)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"mae": mae, "mse": mse, "mre": mre}).Info("Test set evaluated")
	return nil
}

func newRand(seed int64) *rand.Rand {
	//nolint:gosec // G404: masking only
	return rand.New(rand.NewSource(seed))
}
