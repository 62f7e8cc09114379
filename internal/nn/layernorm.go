package nn

import (
	"github.com/gopots/gopots/internal/tensor"
)

// LayerNorm normalizes over the last dimension:
//
//	y = (x - mean) / sqrt(var + eps) * gamma + beta
//
// Variance is the biased (population) variance.
type LayerNorm[B tensor.Backend] struct {
	size  int
	eps   float64
	gamma *Parameter[B]
	beta  *Parameter[B]
}

// NewLayerNorm creates a LayerNorm over a trailing dimension of the given size.
func NewLayerNorm[B tensor.Backend](size int, eps float64, backend B) *LayerNorm[B] {
	return &LayerNorm[B]{
		size:  size,
		eps:   eps,
		gamma: NewParameter("weight", Ones(tensor.Shape{size}, backend)),
		beta:  NewParameter("bias", Zeros(tensor.Shape{size}, backend)),
	}
}

// Forward normalizes x.
func (l *LayerNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	mean := x.MeanDim(-1, true)
	centered := x.Sub(mean)
	variance := centered.Square().MeanDim(-1, true)
	normalized := centered.Div(variance.AddScalar(l.eps).Sqrt())
	return normalized.Mul(l.gamma.Tensor()).Add(l.beta.Tensor())
}

// Parameters returns [gamma, beta].
func (l *LayerNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.gamma, l.beta}
}
