package cpu

import (
	"fmt"

	"github.com/gopots/gopots/internal/tensor"
)

// Reshape returns a view with a new shape. The buffer is shared; this is
// safe because no operation writes into its inputs.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if newShape.NumElements() != t.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}
	return t.View(newShape)
}

// Transpose permutes dimensions. With no axes it swaps the last two.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	rank := len(shape)
	if len(axes) == 0 {
		if rank < 2 {
			panic(fmt.Sprintf("transpose: need at least 2D tensor, got %v", shape))
		}
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = i
		}
		axes[rank-1], axes[rank-2] = axes[rank-2], axes[rank-1]
	}
	if len(axes) != rank {
		panic(fmt.Sprintf("transpose: got %d axes for rank %d", len(axes), rank))
	}

	seen := make([]bool, rank)
	outShape := make(tensor.Shape, rank)
	srcStrides := make([]int, rank)
	inStrides := t.Strides()
	for i, ax := range axes {
		ax = tensor.NormalizeDim(ax, rank)
		if seen[ax] {
			panic(fmt.Sprintf("transpose: repeated axis %d in %v", ax, axes))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
		srcStrides[i] = inStrides[ax]
	}

	result := cpu.alloc("transpose", outShape, t.DType())
	gather(result, t, outShape, srcStrides)
	return result
}

// Expand broadcasts t to shape.
func (cpu *CPUBackend) Expand(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	target, _, err := tensor.BroadcastShapes(t.Shape(), shape)
	if err != nil || !target.Equal(shape) {
		panic(fmt.Sprintf("expand: cannot expand %v to %v", t.Shape(), shape))
	}
	result := cpu.alloc("expand", shape, t.DType())
	gather(result, t, shape, tensor.BroadcastStrides(t.Shape(), shape))
	return result
}

func gather(dst, src *tensor.RawTensor, shape tensor.Shape, srcStrides []int) {
	switch src.DType() {
	case tensor.Float32:
		gatherKernel(dst.AsFloat32(), src.AsFloat32(), shape, srcStrides)
	case tensor.Float64:
		gatherKernel(dst.AsFloat64(), src.AsFloat64(), shape, srcStrides)
	case tensor.Int32:
		gatherKernel(dst.AsInt32(), src.AsInt32(), shape, srcStrides)
	}
}

func gatherKernel[T tensor.DType](dst, src []T, shape tensor.Shape, srcStrides []int) {
	it := newStrider(shape, 0, srcStrides)
	for i := range dst {
		dst[i] = src[it.offsets[0]]
		it.next()
	}
}

// Cat concatenates tensors along dim.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}
	first := tensors[0].Shape()
	dim = tensor.NormalizeDim(dim, len(first))

	outShape := first.Clone()
	outShape[dim] = 0
	for _, t := range tensors {
		s := t.Shape()
		if len(s) != len(first) || t.DType() != tensors[0].DType() {
			panic(fmt.Sprintf("cat: incompatible tensors %v and %v", first, s))
		}
		for i := range s {
			if i != dim && s[i] != first[i] {
				panic(fmt.Sprintf("cat: shape mismatch at dim %d: %v vs %v", i, first, s))
			}
		}
		outShape[dim] += s[dim]
	}

	result := cpu.alloc("cat", outShape, tensors[0].DType())
	elem := tensors[0].DType().Size()
	outer, outSize, inner := splitAt(outShape, dim)
	dst := result.Data()

	offset := 0
	for _, t := range tensors {
		size := t.Shape()[dim]
		src := t.Data()
		block := size * inner * elem
		for o := 0; o < outer; o++ {
			start := (o*outSize + offset) * inner * elem
			copy(dst[start:start+block], src[o*block:(o+1)*block])
		}
		offset += size
	}
	return result
}

// Chunk splits x into n equal parts along dim.
func (cpu *CPUBackend) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	if n <= 0 || shape[dim]%n != 0 {
		panic(fmt.Sprintf("chunk: dimension %d of size %d is not divisible by %d", dim, shape[dim], n))
	}

	outer, size, inner := splitAt(shape, dim)
	part := size / n
	partShape := shape.Clone()
	partShape[dim] = part

	elem := x.DType().Size()
	src := x.Data()
	block := part * inner * elem

	parts := make([]*tensor.RawTensor, n)
	for c := 0; c < n; c++ {
		out := cpu.alloc("chunk", partShape, x.DType())
		dst := out.Data()
		for o := 0; o < outer; o++ {
			start := (o*size + c*part) * inner * elem
			copy(dst[o*block:(o+1)*block], src[start:start+block])
		}
		parts[c] = out
	}
	return parts
}
