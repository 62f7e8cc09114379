// Package cpu implements tensor.Backend in pure Go, with gonum BLAS for matrix products.
package cpu

import (
	"fmt"

	"github.com/gopots/gopots/internal/parallel"
	"github.com/gopots/gopots/internal/tensor"
)

// CPUBackend implements tensor operations on the CPU.
type CPUBackend struct {
	device   tensor.Device
	parallel parallel.Config
}

// New creates a new CPU backend using all available cores.
func New() *CPUBackend {
	return &CPUBackend{
		device:   tensor.CPU,
		parallel: parallel.DefaultConfig(),
	}
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device:   tensor.CPU,
		parallel: cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

type float interface {
	~float32 | ~float64
}

func (cpu *CPUBackend) alloc(op string, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

func requireFloat(op string, xs ...*tensor.RawTensor) {
	for _, x := range xs {
		if !x.DType().IsFloat() {
			panic(fmt.Sprintf("%s: unsupported dtype %s", op, x.DType()))
		}
	}
}

func requireSameDType(op string, a, b *tensor.RawTensor) {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}
}

// strider walks a shape in row-major order while tracking one flat offset
// per stride set, so broadcast and permuted reads never recompute coordinates.
type strider struct {
	shape   tensor.Shape
	coord   []int
	strides [][]int
	offsets []int
}

func newStrider(shape tensor.Shape, start int, strides ...[]int) *strider {
	s := &strider{
		shape:   shape,
		coord:   make([]int, len(shape)),
		strides: strides,
		offsets: make([]int, len(strides)),
	}
	rem := start
	for d := len(shape) - 1; d >= 0; d-- {
		s.coord[d] = rem % shape[d]
		rem /= shape[d]
		for k, st := range strides {
			s.offsets[k] += s.coord[d] * st[d]
		}
	}
	return s
}

func (s *strider) next() {
	for d := len(s.shape) - 1; d >= 0; d-- {
		s.coord[d]++
		for k, st := range s.strides {
			s.offsets[k] += st[d]
		}
		if s.coord[d] < s.shape[d] {
			return
		}
		for k, st := range s.strides {
			s.offsets[k] -= st[d] * s.shape[d]
		}
		s.coord[d] = 0
	}
}

// splitAt returns the products of dims before and after dim.
func splitAt(shape tensor.Shape, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[dim], inner
}
