// Package ops defines the differentiable operations recorded on a gradient tape.
package ops

import "github.com/gopots/gopots/internal/tensor"

// Operation is a recorded forward computation that can propagate gradients
// back to its inputs.
type Operation interface {
	// Backward returns one gradient per input (nil for non-differentiable
	// inputs such as masks or class labels).
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	Inputs() []*tensor.RawTensor

	Output() *tensor.RawTensor
}

// MultiOutputOperation is an Operation producing several outputs (Chunk).
type MultiOutputOperation interface {
	Operation

	Outputs() []*tensor.RawTensor

	// BackwardMulti receives one gradient per output; missing ones are zero-filled by the tape.
	BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
}

// unary is embedded by single-input operations.
type unary struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensor.
func (u unary) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{u.input}
}

// Output returns the output tensor.
func (u unary) Output() *tensor.RawTensor {
	return u.output
}

// binary is embedded by two-input operations.
type binary struct {
	a, b   *tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensors [a, b].
func (o binary) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{o.a, o.b}
}

// Output returns the output tensor.
func (o binary) Output() *tensor.RawTensor {
	return o.output
}
