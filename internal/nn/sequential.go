package nn

import (
	"strconv"

	"github.com/gopots/gopots/internal/tensor"
)

// Sequential chains modules; each output feeds the next module.
//
//	fc := nn.NewSequential[B](
//	    nn.NewLinear(T, T, backend),
//	    nn.NewLeakyReLU[B](0.01),
//	    nn.NewLinear(T, horizon, backend),
//	)
//
// Parameters are named by position: "0.weight", "2.bias".
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	for i, m := range modules {
		Scope(strconv.Itoa(i), m.Parameters())
	}
	return &Sequential[B]{modules: modules}
}

// Forward applies all modules in order.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns the parameters of all modules in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// SetTraining propagates the mode to every module.
func (s *Sequential[B]) SetTraining(training bool) {
	for _, m := range s.modules {
		SetTraining(training, m)
	}
}

// Len returns the number of modules.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}
