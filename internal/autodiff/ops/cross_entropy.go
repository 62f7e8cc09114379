package ops

import "github.com/gopots/gopots/internal/tensor"

// CrossEntropyOp is the mean cross-entropy of logits [N, C] and int32 targets [N].
//
//	∂L/∂logits = (softmax(logits) - onehot(targets)) / N
type CrossEntropyOp struct {
	logits, targets *tensor.RawTensor
	output          *tensor.RawTensor
}

// NewCrossEntropyOp creates a new CrossEntropyOp.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{logits: logits, targets: targets, output: output}
}

// Inputs returns [logits, targets].
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits, op.targets}
}

// Output returns the scalar loss.
func (op *CrossEntropyOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the logits gradient. Targets are labels and get none.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.logits.Shape()
	n, c := shape[0], shape[1]

	onehot := tensor.MustRaw(shape, op.logits.DType())
	labels := op.targets.AsInt32()
	switch onehot.DType() {
	case tensor.Float32:
		data := onehot.AsFloat32()
		for i, l := range labels {
			data[i*c+int(l)] = 1
		}
	case tensor.Float64:
		data := onehot.AsFloat64()
		for i, l := range labels {
			data[i*c+int(l)] = 1
		}
	}

	probs := backend.Softmax(op.logits, -1)
	grad := backend.MulScalar(backend.Sub(probs, onehot), 1/float64(n))
	grad = backend.Mul(grad, outputGrad)
	return []*tensor.RawTensor{grad, nil}
}
