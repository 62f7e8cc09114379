package nn

import "github.com/gopots/gopots/internal/tensor"

// GLU is a gated linear unit: left(x) * sigmoid(right(x)).
type GLU[B tensor.Backend] struct {
	left  *Linear[B]
	right *Linear[B]
}

// NewGLU creates a GLU mapping inChannels to outChannels.
func NewGLU[B tensor.Backend](inChannels, outChannels int, backend B) *GLU[B] {
	g := &GLU[B]{
		left:  NewLinear(inChannels, outChannels, backend),
		right: NewLinear(inChannels, outChannels, backend),
	}
	Scope("linear_left", g.left.Parameters())
	Scope("linear_right", g.right.Parameters())
	return g
}

// Forward applies the gate over the last dimension.
func (g *GLU[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return g.left.Forward(x).Mul(g.right.Forward(x).Sigmoid())
}

// Parameters returns both projections.
func (g *GLU[B]) Parameters() []*Parameter[B] {
	return append(g.left.Parameters(), g.right.Parameters()...)
}
