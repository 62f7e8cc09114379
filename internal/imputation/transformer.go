package imputation

import (
	"github.com/gopots/gopots/internal/data"
	"github.com/gopots/gopots/internal/nn"
	"github.com/gopots/gopots/internal/tensor"
)

// Transformer imputes with a vanilla Transformer encoder over the SAITS
// embedding of values and mask.
type Transformer[B tensor.Backend] struct {
	cfg        ModelConfig
	embedding  *nn.SaitsEmbedding[B]
	encoder    *nn.TransformerEncoder[B]
	projection *nn.Linear[B]
	loss       *nn.SaitsLoss[B]
	params     []*nn.Parameter[B]
}

// NewTransformer creates a Transformer imputer.
func NewTransformer[B tensor.Backend](cfg ModelConfig, backend B) (*Transformer[B], error) {
	loss, err := newSaitsLoss[B](cfg)
	if err != nil {
		return nil, err
	}
	m := &Transformer[B]{
		cfg: cfg,
		embedding: nn.NewSaitsEmbedding(2*cfg.NFeatures, cfg.DModel,
			nn.SaitsEmbeddingConfig{WithPos: true, NMaxSteps: cfg.NSteps, Dropout: cfg.Dropout}, backend),
		encoder:    nn.NewTransformerEncoder(cfg.transformer(), backend),
		projection: nn.NewLinear(cfg.DModel, cfg.NFeatures, backend),
		loss:       loss,
	}
	m.params = concat(
		nn.Scope("saits_embedding", m.embedding.Parameters()),
		nn.Scope("encoder", m.encoder.Parameters()),
		nn.Scope("output_projection", m.projection.Parameters()),
	)
	return m, nil
}

// Config returns the configuration the model was built with.
func (m *Transformer[B]) Config() ModelConfig {
	return m.cfg
}

// Name returns "Transformer".
func (m *Transformer[B]) Name() string {
	return "Transformer"
}

// Forward imputes the batch and, in training, scores it with SaitsLoss.
func (m *Transformer[B]) Forward(batch *data.Batch[B], training bool) (*Output[B], error) {
	x, mask := batch.X, batch.MissingMask
	h, _ := m.encoder.Forward(m.embedding.Forward(x, mask), nil)
	recon := m.projection.Forward(h)
	return score(m.loss, batch, recon, training)
}

// Parameters returns all trainable parameters.
func (m *Transformer[B]) Parameters() []*nn.Parameter[B] {
	return m.params
}

// SetTraining toggles dropout.
func (m *Transformer[B]) SetTraining(training bool) {
	nn.SetTraining(training, m.embedding, m.encoder)
}

// score builds the Output for a single reconstruction.
func score[B tensor.Backend](
	loss *nn.SaitsLoss[B], batch *data.Batch[B], recon *tensor.Tensor[float32, B], training bool,
) (*Output[B], error) {
	out := &Output[B]{Imputed: merge(batch.X, batch.MissingMask, recon), Reconstruction: recon}
	if !training {
		return out, nil
	}
	if err := requireGroundTruth(batch); err != nil {
		return nil, err
	}
	total, ort, mit, err := loss.Forward(recon, batch.XOri, batch.MissingMask, batch.IndicatingMask)
	if err != nil {
		return nil, err
	}
	out.Loss, out.ORTLoss, out.MITLoss = total, ort, mit
	return out, nil
}
