package ops

import "github.com/gopots/gopots/internal/tensor"

// ReLUOp: output = max(0, x).
type ReLUOp struct{ unary }

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{unary{input, output}}
}

// Backward passes the gradient where x > 0.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	mask := backend.Greater(op.input, scalarLike(op.input, 0))
	return []*tensor.RawTensor{backend.Mul(outputGrad, mask)}
}

// LeakyReLUOp: output = x for x > 0, slope*x otherwise.
type LeakyReLUOp struct {
	unary
	slope float64
}

// NewLeakyReLUOp creates a new LeakyReLUOp.
func NewLeakyReLUOp(input, output *tensor.RawTensor, slope float64) *LeakyReLUOp {
	return &LeakyReLUOp{unary{input, output}, slope}
}

// Backward scales the gradient by 1 or slope.
func (op *LeakyReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	mask := backend.Greater(op.input, scalarLike(op.input, 0))
	// mask*(1-slope) + slope is 1 where x > 0 and slope elsewhere.
	scale := backend.AddScalar(backend.MulScalar(mask, 1-op.slope), op.slope)
	return []*tensor.RawTensor{backend.Mul(outputGrad, scale)}
}

// SigmoidOp: output = σ(x), ∂L/∂x = ∂L/∂out * σ(1-σ).
type SigmoidOp struct{ unary }

// NewSigmoidOp creates a new SigmoidOp.
func NewSigmoidOp(input, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{unary{input, output}}
}

// Backward computes the input gradient.
func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	oneMinus := backend.AddScalar(backend.Neg(op.output), 1)
	return []*tensor.RawTensor{backend.Mul(outputGrad, backend.Mul(op.output, oneMinus))}
}

// TanhOp: output = tanh(x), ∂L/∂x = ∂L/∂out * (1 - tanh²).
type TanhOp struct{ unary }

// NewTanhOp creates a new TanhOp.
func NewTanhOp(input, output *tensor.RawTensor) *TanhOp {
	return &TanhOp{unary{input, output}}
}

// Backward computes the input gradient.
func (op *TanhOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	oneMinus := backend.AddScalar(backend.Neg(backend.Mul(op.output, op.output)), 1)
	return []*tensor.RawTensor{backend.Mul(outputGrad, oneMinus)}
}

// SoftmaxOp is softmax along an arbitrary dimension.
//
//	∂L/∂x = s * (∂L/∂s - Σ_dim(∂L/∂s * s))
type SoftmaxOp struct {
	unary
	dim int
}

// NewSoftmaxOp creates a new SoftmaxOp.
func NewSoftmaxOp(input, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{unary{input, output}, tensor.NormalizeDim(dim, len(input.Shape()))}
}

// Backward computes the input gradient.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dot := backend.SumDim(backend.Mul(outputGrad, op.output), op.dim, true)
	return []*tensor.RawTensor{backend.Mul(op.output, backend.Sub(outputGrad, dot))}
}
