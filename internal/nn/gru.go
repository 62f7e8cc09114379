package nn

import (
	"fmt"
	"math"

	"github.com/gopots/gopots/internal/tensor"
)

// GRU is a single-layer gated recurrent unit over a sequence-first input
// [L, B, inputSize]. Gates are stacked in the order reset, update, new:
//
//	r = σ(W_ir x + b_ir + W_hr h + b_hr)
//	z = σ(W_iz x + b_iz + W_hz h + b_hz)
//	n = tanh(W_in x + b_in + r ⊙ (W_hn h + b_hn))
//	h' = (1 - z) ⊙ n + z ⊙ h
//
// All weights start in U(-1/√H, 1/√H).
type GRU[B tensor.Backend] struct {
	inputSize  int
	hiddenSize int
	weightIH   *Parameter[B] // [3H, in]
	weightHH   *Parameter[B] // [3H, H]
	biasIH     *Parameter[B] // [3H]
	biasHH     *Parameter[B] // [3H]
	backend    B
}

// NewGRU creates a GRU layer.
func NewGRU[B tensor.Backend](inputSize, hiddenSize int, backend B) *GRU[B] {
	bound := 1 / math.Sqrt(float64(hiddenSize))
	gates := 3 * hiddenSize
	return &GRU[B]{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		weightIH:   NewParameter("weight_ih_l0", Uniform(tensor.Shape{gates, inputSize}, bound, backend)),
		weightHH:   NewParameter("weight_hh_l0", Uniform(tensor.Shape{gates, hiddenSize}, bound, backend)),
		biasIH:     NewParameter("bias_ih_l0", Uniform(tensor.Shape{gates}, bound, backend)),
		biasHH:     NewParameter("bias_hh_l0", Uniform(tensor.Shape{gates}, bound, backend)),
		backend:    backend,
	}
}

// Forward runs the recurrence over x [L, B, in] from h0 [B, H]; a nil h0
// starts from zeros. It returns every hidden state [L, B, H] and the last
// one [B, H].
func (g *GRU[B]) Forward(x, h0 *tensor.Tensor[float32, B]) (output, hidden *tensor.Tensor[float32, B]) {
	if x.Rank() != 3 || x.Dim(2) != g.inputSize {
		panic(fmt.Sprintf("GRU.Forward: expected [L, B, %d], got %v", g.inputSize, x.Shape()))
	}
	steps, batch := x.Dim(0), x.Dim(1)

	h := h0
	if h == nil {
		h = tensor.Zeros[float32](tensor.Shape{batch, g.hiddenSize}, g.backend)
	}

	// The input projection does not depend on h, so do it for all steps at once.
	gi := x.Reshape(-1, g.inputSize).MatMul(g.weightIH.Tensor().Transpose()).Add(g.biasIH.Tensor())
	gi = gi.Reshape(steps, batch, 3*g.hiddenSize)
	inputs := gi.Chunk(steps, 0)
	wHH := g.weightHH.Tensor().Transpose()

	outputs := make([]*tensor.Tensor[float32, B], steps)
	for t, it := range inputs {
		i := it.Reshape(batch, 3*g.hiddenSize).Chunk(3, 1)
		hh := h.MatMul(wHH).Add(g.biasHH.Tensor()).Chunk(3, 1)

		r := i[0].Add(hh[0]).Sigmoid()
		z := i[1].Add(hh[1]).Sigmoid()
		n := i[2].Add(r.Mul(hh[2])).Tanh()
		h = n.Add(z.Mul(h.Sub(n)))
		outputs[t] = h
	}
	return tensor.Stack(outputs, 0), h
}

// Parameters returns [weight_ih, weight_hh, bias_ih, bias_hh].
func (g *GRU[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{g.weightIH, g.weightHH, g.biasIH, g.biasHH}
}

// HiddenSize returns H.
func (g *GRU[B]) HiddenSize() int {
	return g.hiddenSize
}
