package cpu

import (
	"fmt"
	"math"

	"github.com/gopots/gopots/internal/parallel"
	"github.com/gopots/gopots/internal/tensor"
)

// Sum reduces all elements to a 0-D tensor.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat("sum", x)
	result := cpu.alloc("sum", tensor.Shape{}, x.DType())
	switch x.DType() {
	case tensor.Float32:
		result.AsFloat32()[0] = float32(sumAll(x.AsFloat32()))
	case tensor.Float64:
		result.AsFloat64()[0] = sumAll(x.AsFloat64())
	}
	return result
}

// sumAll accumulates in float64 to keep float32 losses stable.
func sumAll[T float](data []T) float64 {
	var s float64
	for _, v := range data {
		s += float64(v)
	}
	return s
}

// SumDim sums along dim.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("sum_dim", x, dim, keepDim, 1)
}

// MeanDim averages along dim.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	d := tensor.NormalizeDim(dim, len(shape))
	return cpu.reduceDim("mean_dim", x, dim, keepDim, 1/float64(shape[d]))
}

func (cpu *CPUBackend) reduceDim(op string, x *tensor.RawTensor, dim int, keepDim bool, scale float64) *tensor.RawTensor {
	requireFloat(op, x)
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	outer, size, inner := splitAt(shape, dim)

	result := cpu.alloc(op, reducedShape(shape, dim, keepDim), x.DType())
	switch x.DType() {
	case tensor.Float32:
		reduceKernel(result.AsFloat32(), x.AsFloat32(), outer, size, inner, scale)
	case tensor.Float64:
		reduceKernel(result.AsFloat64(), x.AsFloat64(), outer, size, inner, scale)
	}
	return result
}

func reduceKernel[T float](out, in []T, outer, size, inner int, scale float64) {
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var s float64
			base := o*size*inner + i
			for d := 0; d < size; d++ {
				s += float64(in[base+d*inner])
			}
			out[o*inner+i] = T(s * scale)
		}
	}
}

func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	out := make(tensor.Shape, 0, len(shape))
	for i, s := range shape {
		switch {
		case i != dim:
			out = append(out, s)
		case keepDim:
			out = append(out, 1)
		}
	}
	return out
}

// Softmax normalizes along dim with max subtraction.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat("softmax", x)
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	outer, size, inner := splitAt(shape, dim)

	result := cpu.alloc("softmax", shape, x.DType())
	switch x.DType() {
	case tensor.Float32:
		softmaxKernel(result.AsFloat32(), x.AsFloat32(), outer, size, inner, cpu.parallel)
	case tensor.Float64:
		softmaxKernel(result.AsFloat64(), x.AsFloat64(), outer, size, inner, cpu.parallel)
	}
	return result
}

func softmaxKernel[T float](out, in []T, outer, size, inner int, cfg parallel.Config) {
	cfg.MinChunkSize = max(1, cfg.MinChunkSize/size)
	parallel.For(outer*inner, func(row int) {
		o, i := row/inner, row%inner
		base := o*size*inner + i

		maxVal := math.Inf(-1)
		for d := 0; d < size; d++ {
			maxVal = math.Max(maxVal, float64(in[base+d*inner]))
		}
		var sum float64
		for d := 0; d < size; d++ {
			e := math.Exp(float64(in[base+d*inner]) - maxVal)
			out[base+d*inner] = T(e)
			sum += e
		}
		for d := 0; d < size; d++ {
			out[base+d*inner] = T(float64(out[base+d*inner]) / sum)
		}
	}, cfg)
}

// CrossEntropy computes the mean negative log-likelihood of integer targets.
func (cpu *CPUBackend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	requireFloat("cross_entropy", logits)
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cross_entropy: logits must be [N, C], got %v", shape))
	}
	n, c := shape[0], shape[1]
	if targets.DType() != tensor.Int32 || targets.NumElements() != n {
		panic(fmt.Sprintf("cross_entropy: targets must be int32 [%d], got %s %v", n, targets.DType(), targets.Shape()))
	}

	values := logits.Float64s()
	labels := targets.AsInt32()
	var total float64
	for i := 0; i < n; i++ {
		label := int(labels[i])
		if label < 0 || label >= c {
			panic(fmt.Sprintf("cross_entropy: target %d out of range [0, %d)", label, c))
		}
		row := values[i*c : (i+1)*c]
		total += logSumExp(row) - row[label]
	}

	result := cpu.alloc("cross_entropy", tensor.Shape{}, logits.DType())
	switch logits.DType() {
	case tensor.Float32:
		result.AsFloat32()[0] = float32(total / float64(n))
	case tensor.Float64:
		result.AsFloat64()[0] = total / float64(n)
	}
	return result
}

func logSumExp(row []float64) float64 {
	maxVal := math.Inf(-1)
	for _, v := range row {
		maxVal = math.Max(maxVal, v)
	}
	var s float64
	for _, v := range row {
		s += math.Exp(v - maxVal)
	}
	return maxVal + math.Log(s)
}
