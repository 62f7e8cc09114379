package autodiff

import (
	"fmt"

	"github.com/gopots/gopots/internal/tensor"
)

// BackwardCapable is a backend that owns a gradient tape.
type BackwardCapable interface {
	tensor.Backend
	GetTape() *GradientTape
	GradBackend() tensor.Backend
}

// GetTape returns the gradient tape.
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// GradBackend returns the backend used for gradient arithmetic (the wrapped
// one, so the backward pass never records onto the tape).
func (b *AutodiffBackend[B]) GradBackend() tensor.Backend {
	return b.inner
}

// Backward computes gradients of t with respect to every tensor on the tape.
//
// t is usually a scalar loss; for non-scalar t the seed is all ones.
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}

	seed, err := tensor.NewRaw(t.Shape(), t.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("backward: failed to create output gradient: %v", err))
	}
	switch t.DType() {
	case tensor.Float32:
		for i, data := 0, seed.AsFloat32(); i < len(data); i++ {
			data[i] = 1
		}
	case tensor.Float64:
		for i, data := 0, seed.AsFloat64(); i < len(data); i++ {
			data[i] = 1
		}
	default:
		panic(fmt.Sprintf("backward: unsupported dtype %s (only float32/float64 supported)", t.DType()))
	}

	return tape.Backward(t.Raw(), seed, backend.GradBackend())
}
