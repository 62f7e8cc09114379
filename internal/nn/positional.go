package nn

import (
	"fmt"
	"math"

	"github.com/gopots/gopots/internal/tensor"
)

// PositionalEncoding adds the fixed sinusoidal table
//
//	PE(pos, j) = sin(pos / 10000^(2⌊j/2⌋/d))  for even j
//	PE(pos, j) = cos(pos / 10000^(2⌊j/2⌋/d))  for odd j
//
// to inputs of shape [batch, steps, d]. The table is a constant buffer, not a parameter.
type PositionalEncoding[B tensor.Backend] struct {
	dHid       int
	nPositions int
	table      []float32 // [nPositions, dHid]
	backend    B
}

// NewPositionalEncoding precomputes the table for up to nPositions steps.
func NewPositionalEncoding[B tensor.Backend](dHid, nPositions int, backend B) *PositionalEncoding[B] {
	table := make([]float32, nPositions*dHid)
	for pos := 0; pos < nPositions; pos++ {
		for j := 0; j < dHid; j++ {
			angle := float64(pos) / math.Pow(10000, float64(2*(j/2))/float64(dHid))
			if j%2 == 0 {
				table[pos*dHid+j] = float32(math.Sin(angle))
			} else {
				table[pos*dHid+j] = float32(math.Cos(angle))
			}
		}
	}
	return &PositionalEncoding[B]{dHid: dHid, nPositions: nPositions, table: table, backend: backend}
}

// Table returns the encoding for the first steps positions as [1, steps, d].
func (p *PositionalEncoding[B]) Table(steps int) *tensor.Tensor[float32, B] {
	if steps > p.nPositions {
		panic(fmt.Sprintf("PositionalEncoding: %d steps exceed table size %d", steps, p.nPositions))
	}
	data := make([]float32, steps*p.dHid)
	copy(data, p.table[:steps*p.dHid])
	return tensor.MustFromSlice(data, tensor.Shape{1, steps, p.dHid}, p.backend)
}

// Forward returns x + PE for x of shape [batch, steps, d].
func (p *PositionalEncoding[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x.Add(p.Table(x.Dim(1)))
}

// ReturnOnly returns the encoding alone, broadcast to x's shape
// [batch, steps, d]; x's values are not used.
func (p *PositionalEncoding[B]) ReturnOnly(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return p.Table(x.Dim(1)).Expand(tensor.Shape{x.Dim(0), x.Dim(1), p.dHid})
}

// Parameters returns nil.
func (p *PositionalEncoding[B]) Parameters() []*Parameter[B] {
	return nil
}
