// Package nn provides the neural network building blocks of the imputation
// models: layers, attention, recurrent and graph-spectral blocks, and loss
// criteria.
package nn

import (
	"github.com/gopots/gopots/internal/tensor"
)

// Module is a layer with a single input and output.
type Module[B tensor.Backend] interface {
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	Parameters() []*Parameter[B]
}

// Trainable is implemented by modules whose behavior differs between
// training and evaluation (dropout).
type Trainable interface {
	SetTraining(training bool)
}

// SetTraining switches every Trainable among modules.
func SetTraining(training bool, modules ...any) {
	for _, m := range modules {
		if t, ok := m.(Trainable); ok {
			t.SetTraining(training)
		}
	}
}

// NumParameters counts the scalar weights in params.
func NumParameters[B tensor.Backend](params []*Parameter[B]) int {
	n := 0
	for _, p := range params {
		n += p.Tensor().NumElements()
	}
	return n
}
