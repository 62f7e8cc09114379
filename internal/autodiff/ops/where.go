package ops

import "github.com/gopots/gopots/internal/tensor"

// WhereOp: output = cond ? x : y. The condition receives no gradient.
type WhereOp struct {
	cond, x, y *tensor.RawTensor
	output     *tensor.RawTensor
}

// NewWhereOp creates a new WhereOp.
func NewWhereOp(cond, x, y, output *tensor.RawTensor) *WhereOp {
	return &WhereOp{cond: cond, x: x, y: y, output: output}
}

// Inputs returns [cond, x, y].
func (op *WhereOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.cond, op.x, op.y}
}

// Output returns the selected tensor.
func (op *WhereOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward routes the gradient to whichever branch was selected.
func (op *WhereOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	zero := scalarLike(outputGrad, 0)
	gradX := backend.Where(op.cond, outputGrad, zero)
	gradY := backend.Where(op.cond, zero, outputGrad)
	return []*tensor.RawTensor{
		nil,
		reduceBroadcast(gradX, op.x.Shape(), backend),
		reduceBroadcast(gradY, op.y.Shape(), backend),
	}
}
