package cpu

import (
	"fmt"
	"math"

	"github.com/gopots/gopots/internal/parallel"
	"github.com/gopots/gopots/internal/tensor"
)

func (cpu *CPUBackend) unary(op string, x *tensor.RawTensor, fn func(float64) float64) *tensor.RawTensor {
	requireFloat(op, x)
	result := cpu.alloc(op, x.Shape(), x.DType())
	switch x.DType() {
	case tensor.Float32:
		runUnary(result.AsFloat32(), x.AsFloat32(), fn, cpu.parallel)
	case tensor.Float64:
		runUnary(result.AsFloat64(), x.AsFloat64(), fn, cpu.parallel)
	}
	return result
}

func runUnary[T float](out, in []T, fn func(float64) float64, cfg parallel.Config) {
	parallel.ForRange(len(out), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = T(fn(float64(in[i])))
		}
	}, cfg)
}

// AddScalar adds a constant to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unary("add_scalar", x, func(v float64) float64 { return v + scalar })
}

// MulScalar multiplies every element by a constant.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unary("mul_scalar", x, func(v float64) float64 { return v * scalar })
}

// Exp computes e^x.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("exp", x, math.Exp)
}

// Log computes ln(x).
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("log", x, math.Log)
}

// Sqrt computes the square root.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sqrt", x, math.Sqrt)
}

// Abs computes |x|.
func (cpu *CPUBackend) Abs(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("abs", x, math.Abs)
}

// Neg computes -x.
func (cpu *CPUBackend) Neg(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("neg", x, func(v float64) float64 { return -v })
}

// ReLU computes max(0, x).
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("relu", x, func(v float64) float64 { return math.Max(v, 0) })
}

// LeakyReLU computes x for positive x and slope*x otherwise.
func (cpu *CPUBackend) LeakyReLU(x *tensor.RawTensor, slope float64) *tensor.RawTensor {
	return cpu.unary("leaky_relu", x, func(v float64) float64 {
		if v > 0 {
			return v
		}
		return slope * v
	})
}

// Sigmoid computes 1/(1+e^-x) without overflowing for large |x|.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sigmoid", x, sigmoid)
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

// Tanh computes the hyperbolic tangent.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("tanh", x, math.Tanh)
}

// Cast converts x to dtype. Float to int conversion truncates toward zero.
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	result := cpu.alloc("cast", x.Shape(), dtype)
	values := x.Float64s()
	switch dtype {
	case tensor.Float32:
		out := result.AsFloat32()
		for i, v := range values {
			out[i] = float32(v)
		}
	case tensor.Float64:
		copy(result.AsFloat64(), values)
	case tensor.Int32:
		out := result.AsInt32()
		for i, v := range values {
			out[i] = int32(v)
		}
	default:
		panic(fmt.Sprintf("cast: unsupported dtype %s", dtype))
	}
	return result
}
