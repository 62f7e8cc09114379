// Package optim implements the optimizers used to train imputation models.
//
// This package provides:
//   - Optimizer: the interface the trainer drives
//   - SGD: stochastic gradient descent with momentum
//   - Adam: adaptive moments with optional L2 weight decay
//   - AdamW: Adam with decoupled weight decay
//   - StepLR: step-wise learning rate decay
//
// Optimizers update parameter storage in place from the gradient map
// returned by autodiff.Backward:
//
//	opt := optim.NewAdamW(model.Parameters(), optim.AdamConfig{LR: 1e-3, WeightDecay: 1e-5}, backend)
//
//	backend.Tape().StartRecording()
//	loss := ...
//	grads := autodiff.Backward(loss, backend)
//	opt.Step(grads)
//	opt.ZeroGrad()
package optim

import (
	"fmt"
	"strings"

	"github.com/gopots/gopots/internal/nn"
	"github.com/gopots/gopots/internal/tensor"
)

// Optimizer updates parameters from gradients.
type Optimizer interface {
	// Step applies one update to every parameter that has a gradient in
	// grads. Parameters missing from the map are left untouched.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears gradients stored on the parameters.
	ZeroGrad()

	GetLR() float32
	SetLR(lr float32)

	// Name identifies the algorithm in checkpoints ("SGD", "Adam", "AdamW").
	Name() string

	// StateDict exports internal buffers keyed "<buffer>.<param index>".
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// New creates the optimizer registered under name ("SGD", "Adam" or
// "AdamW") with learning rate lr and weight decay wd. Zero values pick
// the algorithm defaults.
func New[B tensor.Backend](name string, params []*nn.Parameter[B], lr, wd float32, backend B) (Optimizer, error) {
	switch strings.ToLower(name) {
	case "sgd":
		return NewSGD(params, SGDConfig{LR: lr, Momentum: 0.9, WeightDecay: wd}, backend), nil
	case "adam":
		return NewAdam(params, AdamConfig{LR: lr, WeightDecay: wd}, backend), nil
	case "adamw":
		return NewAdamW(params, AdamConfig{LR: lr, WeightDecay: wd}, backend), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}

// getGradient returns the gradient of param, or nil when the parameter took
// no part in the backward pass.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}

func bufferKey(buffer string, index int) string {
	return fmt.Sprintf("%s.%d", buffer, index)
}

// loadBuffers restores per-parameter buffers saved under "<buffer>.<i>".
// Missing entries are skipped; they are initialized lazily on the next step.
func loadBuffers[B tensor.Backend](
	params []*nn.Parameter[B], buffer string, stateDict map[string]*tensor.RawTensor,
) (map[*nn.Parameter[B]]*tensor.RawTensor, error) {
	out := make(map[*nn.Parameter[B]]*tensor.RawTensor)
	for i, param := range params {
		raw, ok := stateDict[bufferKey(buffer, i)]
		if !ok {
			continue
		}
		if !raw.Shape().Equal(param.Tensor().Shape()) {
			return nil, fmt.Errorf("%s shape mismatch for parameter %q: expected %v, got %v",
				buffer, param.Name(), param.Tensor().Shape(), raw.Shape())
		}
		if raw.DType() != tensor.Float32 {
			return nil, fmt.Errorf("%s for parameter %q: expected float32, got %s", buffer, param.Name(), raw.DType())
		}
		out[param] = raw.Clone()
	}
	return out, nil
}

func zeroBuffer[B tensor.Backend](param *nn.Parameter[B]) *tensor.RawTensor {
	return tensor.MustRaw(param.Tensor().Shape(), tensor.Float32)
}
