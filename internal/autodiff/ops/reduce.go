package ops

import "github.com/gopots/gopots/internal/tensor"

// SumOp reduces every element to a scalar; ∂L/∂x is ∂L/∂out broadcast.
type SumOp struct{ unary }

// NewSumOp creates a new SumOp.
func NewSumOp(input, output *tensor.RawTensor) *SumOp {
	return &SumOp{unary{input, output}}
}

// Backward broadcasts the scalar gradient to the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Expand(outputGrad, op.input.Shape())}
}

// SumDimOp sums along one dimension. MeanDimOp reuses it with scale 1/size.
type SumDimOp struct {
	unary
	dim   int
	scale float64
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(input, output *tensor.RawTensor, dim int) *SumDimOp {
	return &SumDimOp{unary{input, output}, tensor.NormalizeDim(dim, len(input.Shape())), 1}
}

// NewMeanDimOp creates a SumDimOp scaled by 1/size of the reduced dim.
func NewMeanDimOp(input, output *tensor.RawTensor, dim int) *SumDimOp {
	d := tensor.NormalizeDim(dim, len(input.Shape()))
	return &SumDimOp{unary{input, output}, d, 1 / float64(input.Shape()[d])}
}

// Backward restores the reduced dimension and broadcasts along it.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	keepShape := op.input.Shape().Clone()
	keepShape[op.dim] = 1
	grad := backend.Expand(backend.Reshape(outputGrad, keepShape), op.input.Shape())
	if op.scale != 1 {
		grad = backend.MulScalar(grad, op.scale)
	}
	return []*tensor.RawTensor{grad}
}
