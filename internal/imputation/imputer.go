package imputation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gopots/gopots/internal/autodiff"
	"github.com/gopots/gopots/internal/data"
	"github.com/gopots/gopots/internal/metrics"
	"github.com/gopots/gopots/internal/nn"
	"github.com/gopots/gopots/internal/optim"
	"github.com/gopots/gopots/internal/tensor"
)

// Saving strategies.
const (
	SaveNone   = "none"   // never write model files
	SaveBest   = "best"   // write the best model once training ends
	SaveBetter = "better" // write every improvement as training goes
	SaveAll    = "all"    // write every epoch and the best model at the end
)

// TrainConfig controls fitting.
type TrainConfig struct {
	Epochs    int `yaml:"epochs"`
	BatchSize int `yaml:"batch_size"`
	// Patience stops training after this many epochs without improvement;
	// 0 disables early stopping.
	Patience int `yaml:"patience"`

	Optimizer   string  `yaml:"optimizer"` // SGD, Adam or AdamW
	LR          float64 `yaml:"lr"`
	WeightDecay float64 `yaml:"weight_decay"`
	// LRStepSize enables StepLR decay by LRGamma every LRStepSize epochs.
	LRStepSize int     `yaml:"lr_step_size"`
	LRGamma    float64 `yaml:"lr_gamma"`

	// MITRate is the share of observed training values hidden for the
	// masked imputation task when the training set has no ground truth.
	MITRate float64 `yaml:"mit_rate"`
	// ValidationMetric scores validation imputations: MAE, MSE, RMSE or MRE.
	ValidationMetric string `yaml:"validation_metric"`

	SavingPath     string `yaml:"saving_path"`
	SavingStrategy string `yaml:"saving_strategy"`

	Seed int64 `yaml:"seed"`
}

// DefaultTrainConfig returns the defaults used when fields are left zero.
// The saving strategy is left empty: it resolves to best once a saving
// path is set and to none otherwise.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:           100,
		BatchSize:        32,
		Optimizer:        "Adam",
		LR:               0.001,
		MITRate:          0.2,
		ValidationMetric: "MSE",
	}
}

func (c TrainConfig) withDefaults() TrainConfig {
	d := DefaultTrainConfig()
	if c.Epochs == 0 {
		c.Epochs = d.Epochs
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Optimizer == "" {
		c.Optimizer = d.Optimizer
	}
	if c.LR == 0 {
		c.LR = d.LR
	}
	if c.MITRate == 0 {
		c.MITRate = d.MITRate
	}
	if c.ValidationMetric == "" {
		c.ValidationMetric = d.ValidationMetric
	}
	if c.SavingStrategy == "" {
		c.SavingStrategy = SaveBest
		if c.SavingPath == "" {
			c.SavingStrategy = SaveNone
		}
	}
	if c.LRGamma == 0 {
		c.LRGamma = 0.1
	}
	return c
}

// Validate checks the configuration.
func (c TrainConfig) Validate() error {
	if c.Epochs < 0 || c.BatchSize < 0 || c.Patience < 0 || c.LRStepSize < 0 {
		return fmt.Errorf("training: epochs, batch_size, patience and lr_step_size must not be negative")
	}
	if c.MITRate < 0 || c.MITRate >= 1 {
		return fmt.Errorf("training: mit_rate must be in [0, 1), got %v", c.MITRate)
	}
	if c.ValidationMetric != "" {
		if _, ok := validationMetrics[strings.ToUpper(c.ValidationMetric)]; !ok {
			return fmt.Errorf("training: unknown validation metric %q", c.ValidationMetric)
		}
	}
	switch c.SavingStrategy {
	case "", SaveNone, SaveBest, SaveBetter, SaveAll:
	default:
		return fmt.Errorf("training: unknown saving strategy %q", c.SavingStrategy)
	}
	if c.SavingStrategy != "" && c.SavingStrategy != SaveNone && c.SavingPath == "" {
		return fmt.Errorf("training: saving strategy %q needs a saving path", c.SavingStrategy)
	}
	return nil
}

var validationMetrics = map[string]func(predictions, targets, masks []float64) (float64, error){
	"MAE":  metrics.CalcMAE,
	"MSE":  metrics.CalcMSE,
	"RMSE": metrics.CalcRMSE,
	"MRE":  metrics.CalcMRE,
}

// Imputer trains a Model and imputes datasets with it. B must be an
// autodiff backend so Fit can record and replay the forward pass.
type Imputer[B autodiff.BackwardCapable] struct {
	model     Model[B]
	cfg       TrainConfig
	optimizer optim.Optimizer
	scheduler *optim.StepLR
	backend   B
	logger    *logrus.Logger
	rng       *rand.Rand

	runID     string
	fitted    bool
	bestLoss  float64
	bestEpoch int
	epoch     int
	step      int64
}

// NewImputer wraps model for training with cfg. A nil logger uses
// logrus.New().
func NewImputer[B autodiff.BackwardCapable](model Model[B], cfg TrainConfig, backend B, logger *logrus.Logger) (*Imputer[B], error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	opt, err := optim.New(cfg.Optimizer, model.Parameters(), float32(cfg.LR), float32(cfg.WeightDecay), backend)
	if err != nil {
		return nil, err
	}
	imp := &Imputer[B]{
		model:     model,
		cfg:       cfg,
		optimizer: opt,
		backend:   backend,
		logger:    logger,
		//nolint:gosec // G404: shuffling and masking only
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		runID:    uuid.NewString(),
		bestLoss: math.Inf(1),
	}
	if cfg.LRStepSize > 0 {
		imp.scheduler = optim.NewStepLR(opt, cfg.LRStepSize, cfg.LRGamma)
	}
	return imp, nil
}

// Model returns the wrapped model.
func (imp *Imputer[B]) Model() Model[B] {
	return imp.model
}

// Optimizer returns the optimizer driving the model.
func (imp *Imputer[B]) Optimizer() optim.Optimizer {
	return imp.optimizer
}

// RunID identifies this imputer in logs and saved files.
func (imp *Imputer[B]) RunID() string {
	return imp.runID
}

// BestLoss returns the best epoch loss seen by Fit and its epoch (1-based).
func (imp *Imputer[B]) BestLoss() (loss float64, epoch int) {
	return imp.bestLoss, imp.bestEpoch
}

// Fit trains the model on train and, when val is non-nil, selects the
// parameters with the best validation metric; without val the training
// loss is used. The best parameters are restored when training ends.
//
// Every epoch hides a fresh MCAR sample of the observed train.X values
// at MITRate; train.XOri is never used. val must carry ground truth
// (XOri). Training stops early when ctx is
// canceled, returning ctx.Err().
func (imp *Imputer[B]) Fit(ctx context.Context, train, val *data.Dataset) error {
	if err := train.Validate(); err != nil {
		return fmt.Errorf("training set: %w", err)
	}
	if err := imp.checkDims(train); err != nil {
		return err
	}
	var (
		valSet *data.Prepared
		err    error
	)
	if val != nil {
		if val.XOri == nil {
			return fmt.Errorf("validation set: %w", ErrNoGroundTruth)
		}
		if err := imp.checkDims(val); err != nil {
			return err
		}
		if valSet, err = data.NewEvalDataset(val); err != nil {
			return fmt.Errorf("validation set: %w", err)
		}
	}

	log := imp.logger.WithFields(logrus.Fields{"run_id": imp.runID, "model": imp.model.Name()})
	log.WithFields(logrus.Fields{
		"train_samples": train.N,
		"epochs":        imp.cfg.Epochs,
		"batch_size":    imp.cfg.BatchSize,
		"optimizer":     imp.optimizer.Name(),
		"parameters":    nn.NumParameters(imp.model.Parameters()),
	}).Info("Starting training")

	var (
		bestState map[string]*tensor.RawTensor
		patience  = imp.cfg.Patience
		start     = time.Now()
	)
	for epoch := 1; epoch <= imp.cfg.Epochs; epoch++ {
		imp.epoch = epoch
		trainLoss, err := imp.trainEpoch(ctx, train)
		if err != nil {
			return err
		}

		fields := logrus.Fields{"epoch": epoch, "train_loss": trainLoss}
		epochLoss := trainLoss
		if valSet != nil {
			metric, err := imp.validate(ctx, valSet)
			if err != nil {
				return err
			}
			fields["val_"+strings.ToLower(imp.cfg.ValidationMetric)] = metric
			epochLoss = metric
		}
		log.WithFields(fields).Info("Epoch finished")

		if math.IsNaN(epochLoss) {
			return fmt.Errorf("epoch %d: %w", epoch, ErrNaNLoss)
		}

		if epochLoss < imp.bestLoss {
			imp.bestLoss, imp.bestEpoch = epochLoss, epoch
			bestState = nn.CloneStateDict(imp.model.Parameters())
			patience = imp.cfg.Patience
			if imp.cfg.SavingStrategy == SaveBetter {
				if err := imp.saveEpoch(epoch, epochLoss); err != nil {
					return err
				}
			}
		} else {
			patience--
		}
		if imp.cfg.SavingStrategy == SaveAll {
			if err := imp.saveEpoch(epoch, epochLoss); err != nil {
				return err
			}
		}
		if imp.scheduler != nil {
			imp.scheduler.Step()
		}
		if imp.cfg.Patience > 0 && patience <= 0 {
			log.WithFields(logrus.Fields{"epoch": epoch, "best_epoch": imp.bestEpoch}).
				Info("Exceeded patience, stopping early")
			break
		}
	}

	if bestState == nil {
		return ErrNoValidMetric
	}
	if err := nn.LoadStateDict(imp.model.Parameters(), bestState); err != nil {
		return fmt.Errorf("failed to restore best parameters: %w", err)
	}
	imp.fitted = true
	log.WithFields(logrus.Fields{
		"best_epoch": imp.bestEpoch,
		"best_loss":  imp.bestLoss,
		"duration":   time.Since(start),
	}).Info("Finished training")

	if imp.cfg.SavingStrategy == SaveBest || imp.cfg.SavingStrategy == SaveAll || imp.cfg.SavingStrategy == SaveBetter {
		path := filepath.Join(imp.cfg.SavingPath, imp.model.Name()+".pots")
		if err := imp.Save(path); err != nil {
			return err
		}
		log.WithField("path", path).Info("Saved best model")
	}
	return nil
}

func (imp *Imputer[B]) checkDims(d *data.Dataset) error {
	cfg := imp.model.Config()
	if d.T != cfg.NSteps || d.F != cfg.NFeatures {
		return fmt.Errorf("%w: dataset is [%d steps, %d features], model expects [%d, %d]",
			data.ErrShape, d.T, d.F, cfg.NSteps, cfg.NFeatures)
	}
	return nil
}

// trainEpoch runs one pass over train with a freshly drawn MIT mask.
func (imp *Imputer[B]) trainEpoch(ctx context.Context, train *data.Dataset) (float64, error) {
	set, err := data.NewMITDataset(train, imp.cfg.MITRate, imp.rng)
	if err != nil {
		return 0, fmt.Errorf("training set: %w", err)
	}
	tape := imp.backend.GetTape()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()
	imp.model.SetTraining(true)

	var total float64
	batches := data.Batches(set.N, imp.cfg.BatchSize, true, imp.rng)
	for _, idx := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		batch := data.Gather(set, idx, imp.backend)

		tape.Clear()
		tape.StartRecording()
		out, err := imp.model.Forward(batch, true)
		if err != nil {
			return 0, fmt.Errorf("epoch %d: %w", imp.epoch, err)
		}
		loss := float64(out.Loss.Item())
		if math.IsNaN(loss) {
			return 0, fmt.Errorf("epoch %d step %d: %w", imp.epoch, imp.step, ErrNaNLoss)
		}
		grads := autodiff.Backward(out.Loss, imp.backend)
		tape.StopRecording()

		imp.optimizer.Step(grads)
		imp.optimizer.ZeroGrad()
		imp.step++
		total += loss
	}
	return total / float64(len(batches)), nil
}

func (imp *Imputer[B]) validate(ctx context.Context, set *data.Prepared) (float64, error) {
	imputed, err := imp.predict(ctx, set)
	if err != nil {
		return 0, err
	}
	metric := validationMetrics[strings.ToUpper(imp.cfg.ValidationMetric)]
	return metric(imputed, toFloat64(set.XOri), toFloat64(set.IndicatingMask))
}

// Impute fills the missing values of d and returns [N*T*F] values with
// the observed ones unchanged.
func (imp *Imputer[B]) Impute(ctx context.Context, d *data.Dataset) ([]float64, error) {
	if !imp.fitted {
		return nil, ErrNotFitted
	}
	if err := imp.checkDims(d); err != nil {
		return nil, err
	}
	set, err := data.NewEvalDataset(&data.Dataset{X: d.X, N: d.N, T: d.T, F: d.F})
	if err != nil {
		return nil, err
	}
	imputed, err := imp.predict(ctx, set)
	if err != nil {
		return nil, err
	}
	for i, v := range d.X {
		if !math.IsNaN(v) {
			imputed[i] = v
		}
	}
	return imputed, nil
}

func (imp *Imputer[B]) predict(ctx context.Context, set *data.Prepared) ([]float64, error) {
	imp.backend.GetTape().StopRecording()
	imp.model.SetTraining(false)

	out := make([]float64, 0, set.N*set.T*set.F)
	for _, idx := range data.Batches(set.N, imp.cfg.BatchSize, false, nil) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := imp.model.Forward(data.Gather(set, idx, imp.backend), false)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Imputed.Raw().Float64s()...)
	}
	return out, nil
}

// Save writes the model weights to path with the run metadata.
func (imp *Imputer[B]) Save(path string) error {
	if !imp.fitted {
		return ErrNotFitted
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nn.SaveWeights(path, imp.model.Name(), imp.model.Parameters(), imp.metadata())
}

// Load restores weights saved by Save or by a checkpoint into the model.
func (imp *Imputer[B]) Load(path string) error {
	header, err := nn.LoadWeights(path, imp.model.Parameters())
	if err != nil {
		return err
	}
	if header.ModelType != imp.model.Name() {
		return fmt.Errorf("%s holds a %s model, not %s", path, header.ModelType, imp.model.Name())
	}
	imp.fitted = true
	return nil
}

// SaveCheckpoint writes model and optimizer state for resuming training.
func (imp *Imputer[B]) SaveCheckpoint(path string) error {
	ckpt := &nn.Checkpoint[B]{
		ModelType: imp.model.Name(),
		Params:    imp.model.Parameters(),
		Optimizer: imp.optimizer,
		Epoch:     imp.epoch,
		Step:      imp.step,
		Loss:      imp.bestLoss,
		RunID:     imp.runID,
		Metadata:  imp.metadata(),
	}
	return ckpt.Save(path)
}

// LoadCheckpoint restores a checkpoint written by SaveCheckpoint.
func (imp *Imputer[B]) LoadCheckpoint(path string) error {
	ckpt, err := nn.LoadCheckpoint(path, imp.model.Parameters(), imp.optimizer)
	if err != nil {
		return err
	}
	imp.epoch, imp.step, imp.bestLoss = ckpt.Epoch, ckpt.Step, ckpt.Loss
	imp.runID = ckpt.RunID
	imp.fitted = true
	return nil
}

func (imp *Imputer[B]) saveEpoch(epoch int, loss float64) error {
	name := fmt.Sprintf("%s_epoch%d_loss%.6f.pots", imp.model.Name(), epoch, loss)
	if err := os.MkdirAll(imp.cfg.SavingPath, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", imp.cfg.SavingPath, err)
	}
	path := filepath.Join(imp.cfg.SavingPath, name)
	if err := imp.SaveCheckpoint(path); err != nil {
		return fmt.Errorf("failed to save epoch %d: %w", epoch, err)
	}
	imp.logger.WithFields(logrus.Fields{"run_id": imp.runID, "path": path}).Debug("Saved checkpoint")
	return nil
}

func (imp *Imputer[B]) metadata() map[string]string {
	cfg := imp.model.Config()
	return map[string]string{
		"run_id":     imp.runID,
		"n_steps":    strconv.Itoa(cfg.NSteps),
		"n_features": strconv.Itoa(cfg.NFeatures),
		"best_epoch": strconv.Itoa(imp.bestEpoch),
	}
}

func toFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
