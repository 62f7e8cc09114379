package imputation

import (
	"github.com/gopots/gopots/internal/data"
	"github.com/gopots/gopots/internal/nn"
	"github.com/gopots/gopots/internal/tensor"
)

// StemGNN adapts the StemGNN forecaster to imputation. The values and mask
// are embedded together so the backbone sees which entries are missing,
// the backbone treats the d_model embedding channels as graph nodes and
// forecasts a horizon equal to the window, and a linear head projects back
// to the features.
type StemGNN[B tensor.Backend] struct {
	cfg        ModelConfig
	embedding  *nn.SaitsEmbedding[B]
	backbone   *nn.BackboneStemGNN[B]
	projection *nn.Linear[B]
	loss       *nn.SaitsLoss[B]
	params     []*nn.Parameter[B]
}

// NewStemGNN creates a StemGNN imputer.
func NewStemGNN[B tensor.Backend](cfg ModelConfig, backend B) (*StemGNN[B], error) {
	loss, err := newSaitsLoss[B](cfg)
	if err != nil {
		return nil, err
	}
	leakyRate := cfg.LeakyRate
	if leakyRate == 0 {
		leakyRate = 0.2
	}
	backbone, err := nn.NewBackboneStemGNN(nn.StemGNNConfig{
		Units:      cfg.DModel,
		StackCnt:   cfg.NStacks,
		TimeStep:   cfg.NSteps,
		MultiLayer: cfg.NLayers,
		Horizon:    cfg.NSteps,
		Dropout:    cfg.Dropout,
		LeakyRate:  leakyRate,
	}, backend)
	if err != nil {
		return nil, err
	}
	m := &StemGNN[B]{
		cfg:        cfg,
		embedding:  nn.NewSaitsEmbedding(2*cfg.NFeatures, cfg.DModel, nn.SaitsEmbeddingConfig{}, backend),
		backbone:   backbone,
		projection: nn.NewLinear(cfg.DModel, cfg.NFeatures, backend),
		loss:       loss,
	}
	m.params = concat(
		nn.Scope("saits_embedding", m.embedding.Parameters()),
		nn.Scope("backbone", m.backbone.Parameters()),
		nn.Scope("output_projection", m.projection.Parameters()),
	)
	return m, nil
}

// Config returns the configuration the model was built with.
func (m *StemGNN[B]) Config() ModelConfig {
	return m.cfg
}

// Name returns "StemGNN".
func (m *StemGNN[B]) Name() string {
	return "StemGNN"
}

// Forward imputes the batch and, in training, scores it with SaitsLoss.
func (m *StemGNN[B]) Forward(batch *data.Batch[B], training bool) (*Output[B], error) {
	h := m.embedding.Forward(batch.X, batch.MissingMask)
	h, _ = m.backbone.Forward(h)
	return score(m.loss, batch, m.projection.Forward(h), training)
}

// Parameters returns all trainable parameters.
func (m *StemGNN[B]) Parameters() []*nn.Parameter[B] {
	return m.params
}

// SetTraining toggles dropout.
func (m *StemGNN[B]) SetTraining(training bool) {
	nn.SetTraining(training, m.embedding, m.backbone)
}
