package ops

import (
	"fmt"

	"github.com/gopots/gopots/internal/tensor"
)

// reduceBroadcast sums grad over the dimensions that broadcasting expanded,
// returning a gradient with targetShape.
//
//	grad [B, T, D], target [D]       → sum over B and T
//	grad [B, T, D], target [B, 1, D] → sum over T, keep dim
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		return grad
	}
	if len(targetShape) == 0 {
		return backend.Sum(grad)
	}

	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}

	for i, dim := range targetShape {
		if dim == 1 && result.Shape()[i] != 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		panic(fmt.Sprintf("reduceBroadcast: cannot reduce %v to %v", grad.Shape(), targetShape))
	}
	return result
}

// scalarLike returns a 0-D tensor holding v with x's dtype.
func scalarLike(x *tensor.RawTensor, v float64) *tensor.RawTensor {
	s := tensor.MustRaw(tensor.Shape{}, x.DType())
	switch x.DType() {
	case tensor.Float32:
		s.AsFloat32()[0] = float32(v)
	case tensor.Float64:
		s.AsFloat64()[0] = v
	default:
		panic(fmt.Sprintf("scalarLike: unsupported dtype %s", x.DType()))
	}
	return s
}

// narrow copies the slice [start, start+length) of x along dim.
func narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	outer, size, inner := 1, shape[dim], 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}

	outShape := shape.Clone()
	outShape[dim] = length
	out := tensor.MustRaw(outShape, x.DType())

	elem := x.DType().Size()
	block := length * inner * elem
	src, dst := x.Data(), out.Data()
	for o := 0; o < outer; o++ {
		from := (o*size + start) * inner * elem
		copy(dst[o*block:(o+1)*block], src[from:from+block])
	}
	return out
}
