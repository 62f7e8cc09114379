package nn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gopots/gopots/internal/serialization"
	"github.com/gopots/gopots/internal/tensor"
)

// optimizerPrefix separates optimizer state from model weights in a
// checkpoint file.
const optimizerPrefix = "optimizer."

// ErrNotCheckpoint is returned when loading a plain model file as a checkpoint.
var ErrNotCheckpoint = errors.New("file is not a checkpoint")

// OptimizerState is the part of an optimizer a checkpoint needs. It is
// declared here so checkpoints can save optimizers without importing them.
type OptimizerState interface {
	Name() string
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
	GetLR() float32
}

// Checkpoint is a training snapshot: model weights, optimizer state and
// progress counters.
//
//	ckpt := &nn.Checkpoint[B]{Params: model.Parameters(), Optimizer: opt, Epoch: epoch, Loss: loss}
//	err := ckpt.Save("epoch_10.pots")
type Checkpoint[B tensor.Backend] struct {
	ModelType string
	Params    []*Parameter[B]
	Optimizer OptimizerState
	Epoch     int
	Step      int64
	Loss      float64
	RunID     string
	Metadata  map[string]string
}

// Save writes the checkpoint to path.
func (c *Checkpoint[B]) Save(path string) error {
	sd := StateDict(c.Params)
	meta := &serialization.CheckpointMeta{
		Epoch: c.Epoch,
		Step:  c.Step,
		Loss:  c.Loss,
		RunID: c.RunID,
	}
	if c.Optimizer != nil {
		for name, raw := range c.Optimizer.StateDict() {
			sd[optimizerPrefix+name] = raw
		}
		meta.OptimizerType = c.Optimizer.Name()
		meta.OptimizerConfig = map[string]float64{"lr": float64(c.Optimizer.GetLR())}
	}

	header := serialization.Header{
		ModelType:  c.ModelType,
		Metadata:   c.Metadata,
		Checkpoint: meta,
	}
	if err := serialization.WriteFile(path, sd, header); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores params and, when non-nil, optimizer from the
// checkpoint at path. Both must have been built with the architecture and
// configuration that produced it.
func LoadCheckpoint[B tensor.Backend](path string, params []*Parameter[B], optimizer OptimizerState) (*Checkpoint[B], error) {
	sd, header, err := serialization.ReadFile(path, serialization.ReaderOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if header.Checkpoint == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNotCheckpoint)
	}

	model := make(map[string]*tensor.RawTensor, len(sd))
	optState := make(map[string]*tensor.RawTensor)
	for name, raw := range sd {
		if rest, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			optState[rest] = raw
		} else {
			model[name] = raw
		}
	}

	if err := LoadStateDict(params, model); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	if optimizer != nil {
		if header.Checkpoint.OptimizerType != optimizer.Name() {
			return nil, fmt.Errorf("checkpoint optimizer is %q, got %q", header.Checkpoint.OptimizerType, optimizer.Name())
		}
		if err := optimizer.LoadStateDict(optState); err != nil {
			return nil, fmt.Errorf("failed to load optimizer state: %w", err)
		}
	}

	return &Checkpoint[B]{
		ModelType: header.ModelType,
		Params:    params,
		Optimizer: optimizer,
		Epoch:     header.Checkpoint.Epoch,
		Step:      header.Checkpoint.Step,
		Loss:      header.Checkpoint.Loss,
		RunID:     header.Checkpoint.RunID,
		Metadata:  header.Metadata,
	}, nil
}

// SaveWeights writes only the model weights to path.
func SaveWeights[B tensor.Backend](path, modelType string, params []*Parameter[B], metadata map[string]string) error {
	header := serialization.Header{ModelType: modelType, Metadata: metadata}
	if err := serialization.WriteFile(path, StateDict(params), header); err != nil {
		return fmt.Errorf("failed to save weights: %w", err)
	}
	return nil
}

// LoadWeights reads weights saved by SaveWeights or Checkpoint.Save into
// params and returns the file header.
func LoadWeights[B tensor.Backend](path string, params []*Parameter[B]) (serialization.Header, error) {
	sd, header, err := serialization.ReadFile(path, serialization.ReaderOptions{})
	if err != nil {
		return serialization.Header{}, fmt.Errorf("failed to read weights: %w", err)
	}
	if err := LoadStateDict(params, sd); err != nil {
		return serialization.Header{}, err
	}
	return header, nil
}
