package optim

import (
	"github.com/gopots/gopots/internal/nn"
	"github.com/gopots/gopots/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum and L2
// weight decay.
//
//	g = gradient + weightDecay * param
//	velocity = momentum * velocity + g
//	param = param - lr * velocity
//
// Without momentum the velocity is g itself.
type SGD[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float32
	momentum    float32
	weightDecay float32
	velocities  map[*nn.Parameter[B]]*tensor.RawTensor
}

// SGDConfig holds configuration for SGD.
type SGDConfig struct {
	LR          float32 // Learning rate (default: 0.01)
	Momentum    float32 // Momentum factor in [0, 1) (default: 0)
	WeightDecay float32 // L2 penalty (default: 0)
}

// NewSGD creates an SGD optimizer.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, _ B) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD[B]{
		params:      params,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		velocities:  make(map[*nn.Parameter[B]]*tensor.RawTensor),
	}
}

// Step performs a single optimization step.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		gradData := grad.AsFloat32()
		paramData := param.Tensor().Raw().AsFloat32()

		if s.momentum == 0 {
			for i := range paramData {
				paramData[i] -= s.lr * (gradData[i] + s.weightDecay*paramData[i])
			}
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = zeroBuffer(param)
			s.velocities[param] = velocity
		}
		vData := velocity.AsFloat32()
		for i := range paramData {
			vData[i] = s.momentum*vData[i] + gradData[i] + s.weightDecay*paramData[i]
			paramData[i] -= s.lr * vData[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}

// Name returns "SGD".
func (s *SGD[B]) Name() string {
	return "SGD"
}

// StateDict exports the velocity buffers as "velocity.<i>". Without
// momentum it is empty.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, param := range s.params {
		if velocity, ok := s.velocities[param]; ok {
			stateDict[bufferKey("velocity", i)] = velocity
		}
	}
	return stateDict
}

// LoadStateDict restores velocity buffers.
func (s *SGD[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	velocities, err := loadBuffers(s.params, "velocity", stateDict)
	if err != nil {
		return err
	}
	s.velocities = velocities
	return nil
}
