package autodiff

import (
	"github.com/gopots/gopots/internal/autodiff/ops"
	"github.com/gopots/gopots/internal/tensor"
)

// GradientTape records operations during the forward pass and replays them
// in reverse to compute gradients.
//
// Gradients are keyed by RawTensor identity: a parameter's gradient is
// grads[param.Tensor().Raw()].
type GradientTape struct {
	operations []ops.Operation
	recording  bool
}

// NewGradientTape creates an empty, non-recording tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 256),
	}
}

// StartRecording enables recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording reports whether operations are being recorded.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Record appends an operation while recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear drops all recorded operations. Call it after every optimizer step.
func (t *GradientTape) Clear() {
	clear(t.operations)
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Backward propagates seed (the gradient of root) through the tape.
// backend must not record; pass the wrapped backend.
func (t *GradientTape) Backward(root, seed *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	grads := map[*tensor.RawTensor]*tensor.RawTensor{root: seed}

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		inputGrads := t.inputGrads(op, grads, backend)
		if inputGrads == nil {
			continue
		}
		for j, input := range op.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			if existing, ok := grads[input]; ok {
				grads[input] = backend.Add(existing, inputGrads[j])
			} else {
				grads[input] = inputGrads[j]
			}
		}
	}

	return grads
}

func (t *GradientTape) inputGrads(op ops.Operation, grads map[*tensor.RawTensor]*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	multi, ok := op.(ops.MultiOutputOperation)
	if !ok {
		grad, has := grads[op.Output()]
		if !has {
			return nil
		}
		return op.Backward(grad, backend)
	}

	outputs := multi.Outputs()
	outputGrads := make([]*tensor.RawTensor, len(outputs))
	hasAny := false
	for j, out := range outputs {
		if g, has := grads[out]; has {
			outputGrads[j] = g
			hasAny = true
		}
	}
	if !hasAny {
		return nil
	}
	for j, out := range outputs {
		if outputGrads[j] == nil {
			outputGrads[j] = tensor.MustRaw(out.Shape(), out.DType())
		}
	}
	return multi.BackwardMulti(outputGrads, backend)
}
