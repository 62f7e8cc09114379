package nn

import (
	"github.com/gopots/gopots/internal/tensor"
)

// layerNormEps matches the epsilon used by every transformer LayerNorm.
const layerNormEps = 1e-6

// PositionWiseFeedForward computes LayerNorm(x + dropout(W2·relu(W1·x))).
type PositionWiseFeedForward[B tensor.Backend] struct {
	linear1   *Linear[B]
	linear2   *Linear[B]
	layerNorm *LayerNorm[B]
	dropout   *Dropout[B]
}

// NewPositionWiseFeedForward creates the block with hidden size dHid.
func NewPositionWiseFeedForward[B tensor.Backend](dIn, dHid int, dropout float64, backend B) *PositionWiseFeedForward[B] {
	f := &PositionWiseFeedForward[B]{
		linear1:   NewLinear(dIn, dHid, backend),
		linear2:   NewLinear(dHid, dIn, backend),
		layerNorm: NewLayerNorm(dIn, layerNormEps, backend),
		dropout:   NewDropout[B](dropout),
	}
	Scope("linear_1", f.linear1.Parameters())
	Scope("linear_2", f.linear2.Parameters())
	Scope("layer_norm", f.layerNorm.Parameters())
	return f
}

// Forward applies the block to x [B, L, dIn].
func (f *PositionWiseFeedForward[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	h := f.linear2.Forward(f.linear1.Forward(x).ReLU())
	h = f.dropout.Forward(h)
	return f.layerNorm.Forward(h.Add(x))
}

// Parameters returns all weights.
func (f *PositionWiseFeedForward[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	params = append(params, f.linear1.Parameters()...)
	params = append(params, f.linear2.Parameters()...)
	params = append(params, f.layerNorm.Parameters()...)
	return params
}

// SetTraining toggles dropout.
func (f *PositionWiseFeedForward[B]) SetTraining(training bool) {
	f.dropout.SetTraining(training)
}
