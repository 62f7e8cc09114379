package cpu

import (
	"fmt"
	"math"

	"github.com/gopots/gopots/internal/parallel"
	"github.com/gopots/gopots/internal/tensor"
)

type binaryKind int

const (
	opAdd binaryKind = iota
	opSub
	opMul
	opDiv
	opGreater
	opLowerEqual
)

func binaryFn[T float](kind binaryKind) func(x, y T) T {
	switch kind {
	case opAdd:
		return func(x, y T) T { return x + y }
	case opSub:
		return func(x, y T) T { return x - y }
	case opMul:
		return func(x, y T) T { return x * y }
	case opDiv:
		return func(x, y T) T { return x / y }
	case opGreater:
		return func(x, y T) T {
			if x > y {
				return 1
			}
			return 0
		}
	case opLowerEqual:
		return func(x, y T) T {
			if x <= y {
				return 1
			}
			return 0
		}
	default:
		panic("unknown binary op")
	}
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", opAdd, a, b)
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", opSub, a, b)
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", opMul, a, b)
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", opDiv, a, b)
}

// Greater returns 1 where a > b.
func (cpu *CPUBackend) Greater(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("greater", opGreater, a, b)
}

// LowerEqual returns 1 where a <= b.
func (cpu *CPUBackend) LowerEqual(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("lower_equal", opLowerEqual, a, b)
}

func (cpu *CPUBackend) binary(op string, kind binaryKind, a, b *tensor.RawTensor) *tensor.RawTensor {
	requireSameDType(op, a, b)
	requireFloat(op, a)

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	result := cpu.alloc(op, outShape, a.DType())

	switch a.DType() {
	case tensor.Float32:
		runBinary(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(),
			a.Shape(), b.Shape(), outShape, needsBroadcast, binaryFn[float32](kind), cpu.parallel)
	case tensor.Float64:
		runBinary(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(),
			a.Shape(), b.Shape(), outShape, needsBroadcast, binaryFn[float64](kind), cpu.parallel)
	}
	return result
}

func runBinary[T float](out, a, b []T, aShape, bShape, outShape tensor.Shape, broadcast bool, fn func(x, y T) T, cfg parallel.Config) {
	if !broadcast {
		parallel.ForRange(len(out), func(start, end int) {
			for i := start; i < end; i++ {
				out[i] = fn(a[i], b[i])
			}
		}, cfg)
		return
	}

	aStrides := tensor.BroadcastStrides(aShape, outShape)
	bStrides := tensor.BroadcastStrides(bShape, outShape)
	parallel.ForRange(len(out), func(start, end int) {
		it := newStrider(outShape, start, aStrides, bStrides)
		for i := start; i < end; i++ {
			out[i] = fn(a[it.offsets[0]], b[it.offsets[1]])
			it.next()
		}
	}, cfg)
}

// Where selects x where condition is non-zero, otherwise y. All three broadcast.
func (cpu *CPUBackend) Where(condition, x, y *tensor.RawTensor) *tensor.RawTensor {
	requireSameDType("where", x, y)
	requireFloat("where", x)

	shape, _, err := tensor.BroadcastShapes(condition.Shape(), x.Shape())
	if err != nil {
		panic(fmt.Sprintf("where: %v", err))
	}
	shape, _, err = tensor.BroadcastShapes(shape, y.Shape())
	if err != nil {
		panic(fmt.Sprintf("where: %v", err))
	}

	result := cpu.alloc("where", shape, x.DType())
	cond := condition.Float64s()
	cStrides := tensor.BroadcastStrides(condition.Shape(), shape)
	xStrides := tensor.BroadcastStrides(x.Shape(), shape)
	yStrides := tensor.BroadcastStrides(y.Shape(), shape)

	switch x.DType() {
	case tensor.Float32:
		whereKernel(result.AsFloat32(), cond, x.AsFloat32(), y.AsFloat32(), shape, cStrides, xStrides, yStrides)
	case tensor.Float64:
		whereKernel(result.AsFloat64(), cond, x.AsFloat64(), y.AsFloat64(), shape, cStrides, xStrides, yStrides)
	}
	return result
}

func whereKernel[T float](out []T, cond []float64, x, y []T, shape tensor.Shape, cs, xs, ys []int) {
	it := newStrider(shape, 0, cs, xs, ys)
	for i := range out {
		if cond[it.offsets[0]] != 0 {
			out[i] = x[it.offsets[1]]
		} else {
			out[i] = y[it.offsets[2]]
		}
		it.next()
	}
}

// IsNaN returns 1 at NaN positions.
func (cpu *CPUBackend) IsNaN(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("isnan", x, func(v float64) float64 {
		if math.IsNaN(v) {
			return 1
		}
		return 0
	})
}
