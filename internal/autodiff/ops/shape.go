package ops

import "github.com/gopots/gopots/internal/tensor"

// ReshapeOp changes the shape; the gradient is reshaped back.
type ReshapeOp struct{ unary }

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{unary{input, output}}
}

// Backward reshapes the gradient to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.input.Shape())}
}

// TransposeOp permutes dimensions; the gradient is permuted by the inverse.
type TransposeOp struct {
	unary
	axes []int
}

// NewTransposeOp creates a new TransposeOp. Empty axes mean "swap last two".
func NewTransposeOp(input, output *tensor.RawTensor, axes []int) *TransposeOp {
	rank := len(input.Shape())
	full := make([]int, rank)
	if len(axes) == 0 {
		for i := range full {
			full[i] = i
		}
		full[rank-1], full[rank-2] = full[rank-2], full[rank-1]
	} else {
		for i, ax := range axes {
			full[i] = tensor.NormalizeDim(ax, rank)
		}
	}
	return &TransposeOp{unary{input, output}, full}
}

// Backward applies the inverse permutation.
func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inverse := make([]int, len(op.axes))
	for i, ax := range op.axes {
		inverse[ax] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}

// ExpandOp broadcasts the input; the gradient is summed back.
type ExpandOp struct{ unary }

// NewExpandOp creates a new ExpandOp.
func NewExpandOp(input, output *tensor.RawTensor) *ExpandOp {
	return &ExpandOp{unary{input, output}}
}

// Backward reduces the gradient to the input shape.
func (op *ExpandOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{reduceBroadcast(outputGrad, op.input.Shape(), backend)}
}

// CatOp concatenates inputs along dim; the gradient is split at input boundaries.
//
//	inputs [2, 3] and [2, 5] along dim=1 → gradients [:, 0:3] and [:, 3:8]
type CatOp struct {
	inputs []*tensor.RawTensor
	dim    int
	output *tensor.RawTensor
}

// NewCatOp creates a new CatOp.
func NewCatOp(inputs []*tensor.RawTensor, dim int, output *tensor.RawTensor) *CatOp {
	return &CatOp{
		inputs: inputs,
		dim:    tensor.NormalizeDim(dim, len(output.Shape())),
		output: output,
	}
}

// Inputs returns the concatenated tensors.
func (op *CatOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the concatenated result.
func (op *CatOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward splits the gradient along dim.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	start := 0
	for i, in := range op.inputs {
		size := in.Shape()[op.dim]
		grads[i] = narrow(outputGrad, op.dim, start, size)
		start += size
	}
	return grads
}

// ChunkOp splits the input into n equal parts along dim.
type ChunkOp struct {
	input   *tensor.RawTensor
	dim     int
	outputs []*tensor.RawTensor
}

// NewChunkOp creates a new ChunkOp.
func NewChunkOp(input *tensor.RawTensor, dim int, outputs []*tensor.RawTensor) *ChunkOp {
	return &ChunkOp{
		input:   input,
		dim:     tensor.NormalizeDim(dim, len(input.Shape())),
		outputs: outputs,
	}
}

// Inputs returns the input tensor.
func (op *ChunkOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the first chunk. The tape uses Outputs for this operation.
func (op *ChunkOp) Output() *tensor.RawTensor {
	return op.outputs[0]
}

// Outputs returns all chunks.
func (op *ChunkOp) Outputs() []*tensor.RawTensor {
	return op.outputs
}

// Backward handles the single-output view used by generic callers.
func (op *ChunkOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.outputs))
	grads[0] = outputGrad
	for i := 1; i < len(op.outputs); i++ {
		grads[i] = tensor.MustRaw(op.outputs[i].Shape(), op.outputs[i].DType())
	}
	return op.BackwardMulti(grads, backend)
}

// BackwardMulti concatenates the chunk gradients along dim.
func (op *ChunkOp) BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Cat(outputGrads, op.dim)}
}
