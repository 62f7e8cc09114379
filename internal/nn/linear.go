package nn

import (
	"fmt"

	"github.com/gopots/gopots/internal/tensor"
)

// Linear implements y = x @ W.T + b over the last dimension of x.
//
// Any number of leading dims is allowed: [B, T, in] → [B, T, out].
// Weights use Xavier uniform initialization, biases start at zero.
//
//	layer := nn.NewLinear(2*nFeatures, dModel, backend)
//	h := layer.Forward(x) // [B, T, dModel]
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B] // [out_features, in_features]
	bias        *Parameter[B] // [out_features], nil without bias
}

// NewLinear creates a Linear layer with bias.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return newLinear(inFeatures, outFeatures, true, backend)
}

// NewLinearNoBias creates a Linear layer without bias.
func NewLinearNoBias[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return newLinear(inFeatures, outFeatures, false, backend)
}

func newLinear[B tensor.Backend](inFeatures, outFeatures int, withBias bool, backend B) *Linear[B] {
	weightShape := tensor.Shape{outFeatures, inFeatures}
	l := &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", Xavier(inFeatures, outFeatures, weightShape, 1, backend)),
	}
	if withBias {
		l.bias = NewParameter("bias", Zeros(tensor.Shape{outFeatures}, backend))
	}
	return l
}

// Forward applies the affine map to the last dimension.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected last dim %d, got shape %v", l.inFeatures, shape))
	}

	// Flatten leading dims so the product is a single GEMM.
	x := input.Reshape(-1, l.inFeatures)
	out := x.MatMul(l.weight.Tensor().Transpose())
	if l.bias != nil {
		out = out.Add(l.bias.Tensor())
	}

	outShape := shape.Clone()
	outShape[len(outShape)-1] = l.outFeatures
	return out.Reshape(outShape...)
}

// Parameters returns [weight, bias] or [weight].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	if l.bias != nil {
		return []*Parameter[B]{l.weight, l.bias}
	}
	return []*Parameter[B]{l.weight}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter, or nil.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}
