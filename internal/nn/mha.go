package nn

import (
	"github.com/gopots/gopots/internal/tensor"
)

// MultiHeadAttention projects queries, keys and values into nHeads
// subspaces, runs an AttentionOperator on each, and merges the heads back
// into dModel with a final projection. None of the projections carry a bias.
type MultiHeadAttention[B tensor.Backend] struct {
	nHeads   int
	dK, dV   int
	wQs      *Linear[B]
	wKs      *Linear[B]
	wVs      *Linear[B]
	fc       *Linear[B]
	operator AttentionOperator[B]
}

// NewMultiHeadAttention creates the layer around operator.
func NewMultiHeadAttention[B tensor.Backend](
	operator AttentionOperator[B],
	dModel, nHeads, dK, dV int,
	backend B,
) *MultiHeadAttention[B] {
	m := &MultiHeadAttention[B]{
		nHeads:   nHeads,
		dK:       dK,
		dV:       dV,
		wQs:      NewLinearNoBias(dModel, nHeads*dK, backend),
		wKs:      NewLinearNoBias(dModel, nHeads*dK, backend),
		wVs:      NewLinearNoBias(dModel, nHeads*dV, backend),
		fc:       NewLinearNoBias(nHeads*dV, dModel, backend),
		operator: operator,
	}
	Scope("w_qs", m.wQs.Parameters())
	Scope("w_ks", m.wKs.Parameters())
	Scope("w_vs", m.wVs.Parameters())
	Scope("fc", m.fc.Parameters())
	return m
}

// Forward attends q [B, Lq, dModel] over k, v [B, Lk, dModel].
//
// mask may be [Lq, Lk] or [B, Lq, Lk]; it is shared across heads.
// Returns the output [B, Lq, dModel] and attention map [B, H, Lq, Lk].
func (m *MultiHeadAttention[B]) Forward(q, k, v, mask *tensor.Tensor[float32, B]) (out, attn *tensor.Tensor[float32, B]) {
	batch, qLen := q.Dim(0), q.Dim(1)
	kLen, vLen := k.Dim(1), v.Dim(1)

	qh := m.wQs.Forward(q).Reshape(batch, qLen, m.nHeads, m.dK).Transpose(0, 2, 1, 3)
	kh := m.wKs.Forward(k).Reshape(batch, kLen, m.nHeads, m.dK).Transpose(0, 2, 1, 3)
	vh := m.wVs.Forward(v).Reshape(batch, vLen, m.nHeads, m.dV).Transpose(0, 2, 1, 3)

	if mask != nil {
		if mask.Rank() == 2 {
			mask = mask.Unsqueeze(0)
		}
		mask = mask.Unsqueeze(1)
	}

	heads, attn := m.operator.Forward(qh, kh, vh, mask)
	merged := heads.Transpose(0, 2, 1, 3).Reshape(batch, qLen, m.nHeads*m.dV)
	return m.fc.Forward(merged), attn
}

// Parameters returns the projection weights.
func (m *MultiHeadAttention[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 4)
	params = append(params, m.wQs.Parameters()...)
	params = append(params, m.wKs.Parameters()...)
	params = append(params, m.wVs.Parameters()...)
	params = append(params, m.fc.Parameters()...)
	return params
}

// SetTraining forwards the mode to the attention operator.
func (m *MultiHeadAttention[B]) SetTraining(training bool) {
	m.operator.SetTraining(training)
}
