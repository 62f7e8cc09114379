package ops

import "github.com/gopots/gopots/internal/tensor"

// ExpOp: output = e^x, ∂L/∂x = ∂L/∂out * out.
type ExpOp struct{ unary }

// NewExpOp creates a new ExpOp.
func NewExpOp(input, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{unary{input, output}}
}

// Backward computes the input gradient.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// LogOp: output = ln(x), ∂L/∂x = ∂L/∂out / x.
type LogOp struct{ unary }

// NewLogOp creates a new LogOp.
func NewLogOp(input, output *tensor.RawTensor) *LogOp {
	return &LogOp{unary{input, output}}
}

// Backward computes the input gradient.
func (op *LogOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(outputGrad, op.input)}
}

// SqrtOp: output = √x, ∂L/∂x = ∂L/∂out / (2√x).
type SqrtOp struct{ unary }

// NewSqrtOp creates a new SqrtOp.
func NewSqrtOp(input, output *tensor.RawTensor) *SqrtOp {
	return &SqrtOp{unary{input, output}}
}

// Backward computes the input gradient.
func (op *SqrtOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(backend.Div(outputGrad, op.output), 0.5)}
}

// AbsOp: output = |x|, ∂L/∂x = ∂L/∂out * sign(x). sign(0) is 0.
type AbsOp struct{ unary }

// NewAbsOp creates a new AbsOp.
func NewAbsOp(input, output *tensor.RawTensor) *AbsOp {
	return &AbsOp{unary{input, output}}
}

// Backward computes the input gradient.
func (op *AbsOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	zero := scalarLike(op.input, 0)
	sign := backend.Sub(backend.Greater(op.input, zero), backend.Greater(zero, op.input))
	return []*tensor.RawTensor{backend.Mul(outputGrad, sign)}
}
