package nn

import (
	"fmt"
	"math/rand"

	"github.com/gopots/gopots/internal/tensor"
)

// Dropout zeroes elements with probability p during training and scales the
// survivors by 1/(1-p). In evaluation mode it is the identity.
type Dropout[B tensor.Backend] struct {
	p        float64
	training bool
	rng      *rand.Rand
}

// NewDropout creates a Dropout layer in training mode.
func NewDropout[B tensor.Backend](p float64) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("dropout: probability must be in [0, 1), got %v", p))
	}
	return &Dropout[B]{p: p, training: true, rng: newSource()}
}

// Forward applies dropout.
func (d *Dropout[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return x
	}
	keep := 1 / (1 - d.p)
	mask := make([]float32, x.NumElements())
	for i := range mask {
		if d.rng.Float64() >= d.p {
			mask[i] = float32(keep)
		}
	}
	return x.Mul(tensor.MustFromSlice(mask, x.Shape(), x.Backend()))
}

// SetTraining toggles training mode.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// Parameters returns nil; dropout has no weights.
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return nil
}
