package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/gopots/gopots/internal/parallel"
	"github.com/gopots/gopots/internal/tensor"
)

// MatMul multiplies the trailing [M, K] and [K, N] matrices of a and b.
// Leading (batch) dimensions broadcast against each other, so a single
// [N, N] graph operator can be applied to a [B, C, N, T] signal.
//
// Each matrix product is delegated to gonum's Gemm.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireSameDType("matmul", a, b)
	requireFloat("matmul", a)

	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) < 2 || len(bShape) < 2 {
		panic(fmt.Sprintf("matmul: need at least 2D tensors, got %v and %v", aShape, bShape))
	}

	m, k := aShape[len(aShape)-2], aShape[len(aShape)-1]
	kAlt, n := bShape[len(bShape)-2], bShape[len(bShape)-1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch %v @ %v", aShape, bShape))
	}

	aBatch, bBatch := aShape[:len(aShape)-2], bShape[:len(bShape)-2]
	batchShape, _, err := tensor.BroadcastShapes(aBatch, bBatch)
	if err != nil {
		panic(fmt.Sprintf("matmul: batch dims: %v", err))
	}

	outShape := append(batchShape.Clone(), m, n)
	result := cpu.alloc("matmul", outShape, a.DType())

	batches := batchShape.NumElements()
	aOffsets := matrixOffsets(aBatch, batchShape, m*k)
	bOffsets := matrixOffsets(bBatch, batchShape, k*n)

	switch a.DType() {
	case tensor.Float32:
		out, av, bv := result.AsFloat32(), a.AsFloat32(), b.AsFloat32()
		parallel.For(batches, func(i int) {
			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
				blas32.General{Rows: m, Cols: k, Stride: k, Data: av[aOffsets[i] : aOffsets[i]+m*k]},
				blas32.General{Rows: k, Cols: n, Stride: n, Data: bv[bOffsets[i] : bOffsets[i]+k*n]},
				0,
				blas32.General{Rows: m, Cols: n, Stride: n, Data: out[i*m*n : (i+1)*m*n]})
		}, cpu.batchConfig())
	case tensor.Float64:
		out, av, bv := result.AsFloat64(), a.AsFloat64(), b.AsFloat64()
		parallel.For(batches, func(i int) {
			blas64.Gemm(blas.NoTrans, blas.NoTrans, 1,
				blas64.General{Rows: m, Cols: k, Stride: k, Data: av[aOffsets[i] : aOffsets[i]+m*k]},
				blas64.General{Rows: k, Cols: n, Stride: n, Data: bv[bOffsets[i] : bOffsets[i]+k*n]},
				0,
				blas64.General{Rows: m, Cols: n, Stride: n, Data: out[i*m*n : (i+1)*m*n]})
		}, cpu.batchConfig())
	}

	return result
}

// matrixOffsets maps every batch index of the broadcast batch shape to the
// element offset of the matching matrix in a tensor with batch dims `from`.
func matrixOffsets(from, batchShape tensor.Shape, matrixSize int) []int {
	offsets := make([]int, batchShape.NumElements())
	if len(batchShape) == 0 {
		return offsets
	}
	strides := tensor.BroadcastStrides(from, batchShape)
	it := newStrider(batchShape, 0, strides)
	for i := range offsets {
		offsets[i] = it.offsets[0] * matrixSize
		it.next()
	}
	return offsets
}

// batchConfig parallelizes over whole matrices, which are coarse work items.
func (cpu *CPUBackend) batchConfig() parallel.Config {
	cfg := cpu.parallel
	cfg.MinChunkSize = 1
	return cfg
}
