// Package imputation assembles the imputation models and trains them.
//
// A Model maps a batch of partially observed series to a reconstruction
// and, in training mode, to the ORT/MIT losses. An Imputer drives a Model
// through fitting (with validation, early stopping and checkpointing) and
// batched imputation.
package imputation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gopots/gopots/internal/data"
	"github.com/gopots/gopots/internal/nn"
	"github.com/gopots/gopots/internal/tensor"
)

var (
	// ErrNotFitted is returned when imputing or saving before Fit or Load.
	ErrNotFitted = errors.New("imputation: model is not fitted")
	// ErrNaNLoss is returned when training produces a NaN loss.
	ErrNaNLoss = errors.New("imputation: loss is NaN")
	// ErrNoValidMetric is returned when no epoch produced a finite loss.
	ErrNoValidMetric = errors.New("imputation: no valid loss recorded")
	// ErrNoGroundTruth is returned when training or validation data lacks
	// the ground truth needed to score the masked imputation task.
	ErrNoGroundTruth = errors.New("imputation: ground truth required")
	// ErrUnknownModel is returned for an unregistered model kind.
	ErrUnknownModel = errors.New("imputation: unknown model")
)

// Output is the result of one forward pass. The losses are set only in
// training mode.
type Output[B tensor.Backend] struct {
	Imputed        *tensor.Tensor[float32, B] // [B, T, F], observed values kept
	Reconstruction *tensor.Tensor[float32, B] // [B, T, F]
	Loss           *tensor.Tensor[float32, B] // ORT + MIT
	ORTLoss        *tensor.Tensor[float32, B]
	MITLoss        *tensor.Tensor[float32, B]
}

// Model is an imputation network.
type Model[B tensor.Backend] interface {
	// Name is the model kind, stored in saved files.
	Name() string
	Config() ModelConfig
	// Forward imputes batch. With training set it also scores the batch,
	// which then needs XOri and IndicatingMask.
	Forward(batch *data.Batch[B], training bool) (*Output[B], error)
	Parameters() []*nn.Parameter[B]
	SetTraining(training bool)
}

// ModelConfig selects and sizes a model. Fields not used by a kind are
// ignored.
type ModelConfig struct {
	Kind      string `yaml:"kind"` // SAITS, Transformer or StemGNN
	NSteps    int    `yaml:"n_steps"`
	NFeatures int    `yaml:"n_features"`

	NLayers     int     `yaml:"n_layers"`
	DModel      int     `yaml:"d_model"`
	NHeads      int     `yaml:"n_heads"`
	DK          int     `yaml:"d_k"`
	DV          int     `yaml:"d_v"`
	DFFN        int     `yaml:"d_ffn"`
	Dropout     float64 `yaml:"dropout"`
	AttnDropout float64 `yaml:"attn_dropout"`

	// DiagonalAttentionMask applies the SAITS diagonal mask at inference
	// too; training always uses it.
	DiagonalAttentionMask bool `yaml:"diagonal_attention_mask"`

	// StemGNN
	NStacks   int     `yaml:"n_stacks"`
	LeakyRate float64 `yaml:"leaky_rate"`

	ORTWeight    float64 `yaml:"ort_weight"`
	MITWeight    float64 `yaml:"mit_weight"`
	TrainingLoss string  `yaml:"training_loss"`
}

// Validate checks the configuration for the selected kind.
func (c ModelConfig) Validate() error {
	if c.NSteps <= 0 || c.NFeatures <= 0 {
		return fmt.Errorf("model: n_steps and n_features must be positive, got %d and %d", c.NSteps, c.NFeatures)
	}
	if c.NLayers <= 0 || c.DModel <= 0 {
		return fmt.Errorf("model: n_layers and d_model must be positive, got %d and %d", c.NLayers, c.DModel)
	}
	if c.Dropout < 0 || c.Dropout >= 1 || c.AttnDropout < 0 || c.AttnDropout >= 1 {
		return fmt.Errorf("model: dropout rates must be in [0, 1)")
	}
	if c.ORTWeight < 0 || c.MITWeight < 0 {
		return fmt.Errorf("model: loss weights must not be negative")
	}
	switch strings.ToLower(c.Kind) {
	case "saits", "transformer":
		if c.NHeads <= 0 || c.DK <= 0 || c.DV <= 0 || c.DFFN <= 0 {
			return fmt.Errorf("model %s: n_heads, d_k, d_v and d_ffn must be positive", c.Kind)
		}
	case "stemgnn":
		if c.NStacks < 2 {
			return fmt.Errorf("model StemGNN: n_stacks must be at least 2, got %d", c.NStacks)
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownModel, c.Kind)
	}
	return nil
}

func (c ModelConfig) transformer() nn.TransformerConfig {
	return nn.TransformerConfig{
		NLayers:     c.NLayers,
		DModel:      c.DModel,
		NHeads:      c.NHeads,
		DK:          c.DK,
		DV:          c.DV,
		DFFN:        c.DFFN,
		Dropout:     c.Dropout,
		AttnDropout: c.AttnDropout,
	}
}

// NewModel builds the model named by cfg.Kind on backend.
func NewModel[B tensor.Backend](cfg ModelConfig, backend B) (Model[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var (
		model Model[B]
		err   error
	)
	switch strings.ToLower(cfg.Kind) {
	case "saits":
		model, err = NewSAITS(cfg, backend)
	case "transformer":
		model, err = NewTransformer(cfg, backend)
	default:
		model, err = NewStemGNN(cfg, backend)
	}
	if err != nil {
		return nil, err
	}
	return model, nil
}

func newSaitsLoss[B tensor.Backend](cfg ModelConfig) (*nn.SaitsLoss[B], error) {
	name := cfg.TrainingLoss
	if name == "" {
		name = "MAE"
	}
	criterion, err := nn.CriterionByName[B](name)
	if err != nil {
		return nil, fmt.Errorf("training loss: %w", err)
	}
	ort, mit := cfg.ORTWeight, cfg.MITWeight
	if ort == 0 && mit == 0 {
		ort, mit = 1, 1
	}
	return nn.NewSaitsLoss(ort, mit, criterion), nil
}

// merge keeps observed values of x and fills the rest from recon:
// M * X + (1 - M) * recon.
func merge[B tensor.Backend](x, missingMask, recon *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return missingMask.Mul(x).Add(missingMask.RSubScalar(1).Mul(recon))
}

func requireGroundTruth[B tensor.Backend](batch *data.Batch[B]) error {
	if batch.XOri == nil || batch.IndicatingMask == nil {
		return ErrNoGroundTruth
	}
	return nil
}
