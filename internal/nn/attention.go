package nn

import (
	"math"

	"github.com/gopots/gopots/internal/tensor"
)

// maskedFill is the score assigned to positions whose mask entry is zero.
const maskedFill = -1e9

// AttentionOperator computes attention from per-head projections.
//
// q, k, v are [B, H, L, d]; mask broadcasts against the [B, H, Lq, Lk]
// score matrix, with 1 meaning "may attend" and 0 meaning "blocked".
// A nil mask attends everywhere.
type AttentionOperator[B tensor.Backend] interface {
	Forward(q, k, v, mask *tensor.Tensor[float32, B]) (out, attn *tensor.Tensor[float32, B])
	Trainable
}

// ScaledDotProductAttention computes softmax(q/τ · kᵀ) · v with τ = sqrt(d_k).
type ScaledDotProductAttention[B tensor.Backend] struct {
	temperature float64
	dropout     *Dropout[B]
}

// NewScaledDotProductAttention creates the operator. attnDropout of 0
// disables dropout on the attention map.
func NewScaledDotProductAttention[B tensor.Backend](temperature, attnDropout float64) *ScaledDotProductAttention[B] {
	a := &ScaledDotProductAttention[B]{temperature: temperature}
	if attnDropout > 0 {
		a.dropout = NewDropout[B](attnDropout)
	}
	return a
}

// Forward returns the attended values and the attention map.
func (a *ScaledDotProductAttention[B]) Forward(q, k, v, mask *tensor.Tensor[float32, B]) (out, attn *tensor.Tensor[float32, B]) {
	scores := q.DivScalar(a.temperature).MatMul(k.Transpose())
	if mask != nil {
		fill := tensor.Scalar[float32](maskedFill, scores.Backend())
		scores = tensor.Where(mask, scores, fill)
	}
	attn = scores.Softmax(-1)
	if a.dropout != nil {
		attn = a.dropout.Forward(attn)
	}
	return attn.MatMul(v), attn
}

// SetTraining toggles attention dropout.
func (a *ScaledDotProductAttention[B]) SetTraining(training bool) {
	if a.dropout != nil {
		a.dropout.SetTraining(training)
	}
}

// DiagonalMask returns 1 - I of size n: every step may attend to every
// other step but not to itself.
func DiagonalMask[B tensor.Backend](n int, backend B) *tensor.Tensor[float32, B] {
	return tensor.Eye[float32](n, backend).RSubScalar(1)
}

// CausalMask returns the lower-triangular mask of size n.
func CausalMask[B tensor.Backend](n int, backend B) *tensor.Tensor[float32, B] {
	m := tensor.Zeros[float32](tensor.Shape{n, n}, backend)
	data := m.Data()
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			data[i*n+j] = 1
		}
	}
	return m
}

// defaultTemperature is the usual sqrt(d_k) scaling.
func defaultTemperature(dK int) float64 {
	return math.Sqrt(float64(dK))
}
