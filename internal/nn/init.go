package nn

import (
	"math"
	"math/rand"
	"sync"

	"github.com/gopots/gopots/internal/tensor"
)

var (
	rngMu sync.Mutex
	//nolint:gosec // G404: weight initialization is not security-critical
	rng = rand.New(rand.NewSource(1))
)

// Seed reseeds the source used for weight initialization and dropout masks.
func Seed(seed int64) {
	rngMu.Lock()
	defer rngMu.Unlock()
	//nolint:gosec // G404: weight initialization is not security-critical
	rng = rand.New(rand.NewSource(seed))
}

// newSource derives an independent generator from the package source.
func newSource() *rand.Rand {
	rngMu.Lock()
	defer rngMu.Unlock()
	//nolint:gosec // G404: weight initialization is not security-critical
	return rand.New(rand.NewSource(rng.Int63()))
}

func uniform(shape tensor.Shape, bound float64) []float32 {
	r := newSource()
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = float32((r.Float64()*2 - 1) * bound)
	}
	return data
}

// Xavier (Glorot) uniform initialization scaled by gain:
// U(-gain*sqrt(6/(fan_in+fan_out)), gain*sqrt(6/(fan_in+fan_out))).
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, gain float64, backend B) *tensor.Tensor[float32, B] {
	bound := gain * math.Sqrt(6.0/float64(fanIn+fanOut))
	return tensor.MustFromSlice(uniform(shape, bound), shape, backend)
}

// XavierNormal draws from N(0, gain²·2/(fan_in+fan_out)).
func XavierNormal[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, gain float64, backend B) *tensor.Tensor[float32, B] {
	std := gain * math.Sqrt(2.0/float64(fanIn+fanOut))
	t := tensor.RandnWith[float32](shape, newSource(), backend)
	data := t.Data()
	for i := range data {
		data[i] *= float32(std)
	}
	return t
}

// Uniform draws from U(-bound, bound).
func Uniform[B tensor.Backend](shape tensor.Shape, bound float64, backend B) *tensor.Tensor[float32, B] {
	return tensor.MustFromSlice(uniform(shape, bound), shape, backend)
}

// fans computes fan_in and fan_out the way torch does for tensors of rank >= 2:
// the last two dims are (fan_out, fan_in) scaled by the receptive field.
func fans(shape tensor.Shape) (fanIn, fanOut int) {
	if len(shape) < 2 {
		return shape.NumElements(), shape.NumElements()
	}
	receptive := 1
	for _, d := range shape[2:] {
		receptive *= d
	}
	return shape[1] * receptive, shape[0] * receptive
}

// Zeros creates a zero-filled tensor, usually for biases.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}
