package data

import (
	"math/rand"

	"github.com/gopots/gopots/internal/tensor"
)

// Batches splits the indices [0, n) into consecutive groups of batchSize,
// the last one possibly shorter. With shuffle the indices are permuted by
// rng first.
func Batches(n, batchSize int, shuffle bool, rng *rand.Rand) [][]int {
	if n <= 0 || batchSize <= 0 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if shuffle {
		rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	batches := make([][]int, 0, (n+batchSize-1)/batchSize)
	for start := 0; start < n; start += batchSize {
		batches = append(batches, idx[start:min(start+batchSize, n)])
	}
	return batches
}

// Batch is a group of samples as [B, T, F] tensors. XOri and
// IndicatingMask are nil when the source has no ground truth.
type Batch[B tensor.Backend] struct {
	Indices        []int
	X              *tensor.Tensor[float32, B]
	XOri           *tensor.Tensor[float32, B]
	MissingMask    *tensor.Tensor[float32, B]
	IndicatingMask *tensor.Tensor[float32, B]
}

// Size returns the number of samples in the batch.
func (b *Batch[B]) Size() int {
	return len(b.Indices)
}

// Gather copies the samples at idx into a Batch on backend.
func Gather[B tensor.Backend](p *Prepared, idx []int, backend B) *Batch[B] {
	shape := tensor.Shape{len(idx), p.T, p.F}
	batch := &Batch[B]{
		Indices:     idx,
		X:           gather(p.X, idx, shape, p.T*p.F, backend),
		MissingMask: gather(p.MissingMask, idx, shape, p.T*p.F, backend),
	}
	if p.HasGroundTruth() {
		batch.XOri = gather(p.XOri, idx, shape, p.T*p.F, backend)
		batch.IndicatingMask = gather(p.IndicatingMask, idx, shape, p.T*p.F, backend)
	}
	return batch
}

func gather[B tensor.Backend](src []float32, idx []int, shape tensor.Shape, size int, backend B) *tensor.Tensor[float32, B] {
	out := tensor.Zeros[float32](shape, backend)
	dst := out.Data()
	for k, i := range idx {
		copy(dst[k*size:(k+1)*size], src[i*size:(i+1)*size])
	}
	return out
}
