package nn

import (
	"github.com/gopots/gopots/internal/tensor"
)

// SaitsEmbedding projects the concatenation of values and missing mask into
// the model space:
//
//	h = dropout(PE(Linear(cat([X, M], -1))))
//
// Positional encoding and dropout are optional.
type SaitsEmbedding[B tensor.Backend] struct {
	embedding   *Linear[B]
	positionEnc *PositionalEncoding[B]
	dropout     *Dropout[B]
}

// SaitsEmbeddingConfig holds the optional parts of a SaitsEmbedding.
type SaitsEmbeddingConfig struct {
	WithPos   bool
	NMaxSteps int     // Positional table size (default 1000).
	Dropout   float64 // 0 disables dropout.
}

// NewSaitsEmbedding creates an embedding from dIn to dOut features.
func NewSaitsEmbedding[B tensor.Backend](dIn, dOut int, cfg SaitsEmbeddingConfig, backend B) *SaitsEmbedding[B] {
	if cfg.NMaxSteps == 0 {
		cfg.NMaxSteps = 1000
	}
	e := &SaitsEmbedding[B]{
		embedding: NewLinear(dIn, dOut, backend),
	}
	Scope("embedding_layer", e.embedding.Parameters())
	if cfg.WithPos {
		e.positionEnc = NewPositionalEncoding(dOut, cfg.NMaxSteps, backend)
	}
	if cfg.Dropout > 0 {
		e.dropout = NewDropout[B](cfg.Dropout)
	}
	return e
}

// Forward embeds x [B, T, F]. A nil mask skips the concatenation, in which
// case x must already have dIn features.
func (e *SaitsEmbedding[B]) Forward(x, missingMask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if missingMask != nil {
		x = tensor.Cat([]*tensor.Tensor[float32, B]{x, missingMask}, 2)
	}
	h := e.embedding.Forward(x)
	if e.positionEnc != nil {
		h = e.positionEnc.Forward(h)
	}
	if e.dropout != nil {
		h = e.dropout.Forward(h)
	}
	return h
}

// Parameters returns the projection weights.
func (e *SaitsEmbedding[B]) Parameters() []*Parameter[B] {
	return e.embedding.Parameters()
}

// SetTraining toggles dropout.
func (e *SaitsEmbedding[B]) SetTraining(training bool) {
	if e.dropout != nil {
		e.dropout.SetTraining(training)
	}
}
