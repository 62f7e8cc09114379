package optim

import (
	"fmt"
	"math"

	"github.com/gopots/gopots/internal/nn"
	"github.com/gopots/gopots/internal/tensor"
)

// Adam implements Adam (Kingma & Ba, 2014) and, when decoupled, AdamW
// (Loshchilov & Hutter, 2019).
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * g
//	v_t = beta2 * v_{t-1} + (1-beta2) * g²
//	param -= lr * (m_t / (1 - beta1^t)) / (sqrt(v_t / (1 - beta2^t)) + eps)
//
// Adam folds weight decay into the gradient (g += wd * param). AdamW
// instead shrinks the parameter before the update (param *= 1 - lr * wd).
type Adam[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float32
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	decoupled   bool
	t           int
	m           map[*nn.Parameter[B]]*tensor.RawTensor
	v           map[*nn.Parameter[B]]*tensor.RawTensor
}

// AdamConfig holds configuration for Adam and AdamW.
type AdamConfig struct {
	LR          float32    // Learning rate (default: 0.001)
	Betas       [2]float32 // Running average coefficients (default: [0.9, 0.999])
	Eps         float32    // Numerical stability term (default: 1e-8)
	WeightDecay float32    // Adam: L2 penalty (default 0); AdamW: decay rate (default 0.01)
}

// NewAdam creates an Adam optimizer.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, _ B) *Adam[B] {
	return newAdam(params, config, false)
}

// NewAdamW creates an Adam optimizer with decoupled weight decay.
func NewAdamW[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, _ B) *Adam[B] {
	if config.WeightDecay == 0 {
		config.WeightDecay = 0.01
	}
	return newAdam(params, config, true)
}

func newAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, decoupled bool) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam[B]{
		params:      params,
		lr:          config.LR,
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		decoupled:   decoupled,
		m:           make(map[*nn.Parameter[B]]*tensor.RawTensor),
		v:           make(map[*nn.Parameter[B]]*tensor.RawTensor),
	}
}

// Step performs a single optimization step.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++
	biasCorrection1 := float32(1 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		m, ok := a.m[param]
		if !ok {
			m = zeroBuffer(param)
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = zeroBuffer(param)
			a.v[param] = v
		}
		a.update(param.Tensor().Raw().AsFloat32(), grad.AsFloat32(), m.AsFloat32(), v.AsFloat32(),
			biasCorrection1, biasCorrection2)
	}
}

func (a *Adam[B]) update(paramData, gradData, mData, vData []float32, bc1, bc2 float32) {
	for i := range paramData {
		g := gradData[i]
		if a.decoupled {
			paramData[i] *= 1 - a.lr*a.weightDecay
		} else if a.weightDecay != 0 {
			g += a.weightDecay * paramData[i]
		}

		mData[i] = a.beta1*mData[i] + (1-a.beta1)*g
		vData[i] = a.beta2*vData[i] + (1-a.beta2)*g*g

		mHat := mData[i] / bc1
		vHat := vData[i] / bc2
		paramData[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam[B]) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam[B]) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the number of steps taken.
func (a *Adam[B]) GetTimestep() int {
	return a.t
}

// Name returns "AdamW" for decoupled weight decay and "Adam" otherwise.
func (a *Adam[B]) Name() string {
	if a.decoupled {
		return "AdamW"
	}
	return "Adam"
}

// StateDict exports "step", "m.<i>" and "v.<i>".
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, 2*len(a.m)+1)
	step := tensor.MustRaw(tensor.Shape{1}, tensor.Int32)
	step.AsInt32()[0] = int32(a.t)
	stateDict["step"] = step
	for i, param := range a.params {
		if m, ok := a.m[param]; ok {
			stateDict[bufferKey("m", i)] = m
			stateDict[bufferKey("v", i)] = a.v[param]
		}
	}
	return stateDict
}

// LoadStateDict restores the timestep and moment buffers.
func (a *Adam[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	step, ok := stateDict["step"]
	if !ok || step.DType() != tensor.Int32 || step.NumElements() != 1 {
		return fmt.Errorf("%s state: missing or malformed step", a.Name())
	}
	m, err := loadBuffers(a.params, "m", stateDict)
	if err != nil {
		return err
	}
	v, err := loadBuffers(a.params, "v", stateDict)
	if err != nil {
		return err
	}
	if len(m) != len(v) {
		return fmt.Errorf("%s state: %d first moments but %d second moments", a.Name(), len(m), len(v))
	}
	a.t = int(step.AsInt32()[0])
	a.m, a.v = m, v
	return nil
}
