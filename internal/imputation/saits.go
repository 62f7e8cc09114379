package imputation

import (
	"github.com/gopots/gopots/internal/data"
	"github.com/gopots/gopots/internal/nn"
	"github.com/gopots/gopots/internal/tensor"
)

// SAITS is the self-attention-based imputation model: two diagonally
// masked self-attention (DMSA) blocks whose reconstructions are blended by
// weights learned from the missing mask and the last attention map.
//
//	X~1 = reduce_dim_z(DMSA1(X, M))
//	X'  = M*X + (1-M)*X~1
//	X~2 = reduce_dim_gamma(relu(reduce_dim_beta(DMSA2(X', M))))
//	eta = sigmoid(weight_combine(cat(M, mean_heads(attn))))
//	X~3 = (1-eta)*X~2 + eta*X~1
type SAITS[B tensor.Backend] struct {
	cfg          ModelConfig
	diagonalMask bool

	embedding1  *nn.SaitsEmbedding[B]
	firstBlock  *nn.TransformerEncoder[B]
	reduceDimZ  *nn.Linear[B]
	embedding2  *nn.SaitsEmbedding[B]
	secondBlock *nn.TransformerEncoder[B]

	reduceDimBeta  *nn.Linear[B]
	reduceDimGamma *nn.Linear[B]
	weightCombine  *nn.Linear[B]

	loss    *nn.SaitsLoss[B]
	params  []*nn.Parameter[B]
	backend B
}

// NewSAITS creates a SAITS model.
func NewSAITS[B tensor.Backend](cfg ModelConfig, backend B) (*SAITS[B], error) {
	loss, err := newSaitsLoss[B](cfg)
	if err != nil {
		return nil, err
	}
	emb := nn.SaitsEmbeddingConfig{WithPos: true, NMaxSteps: cfg.NSteps, Dropout: cfg.Dropout}
	s := &SAITS[B]{
		cfg:            cfg,
		diagonalMask:   cfg.DiagonalAttentionMask,
		embedding1:     nn.NewSaitsEmbedding(2*cfg.NFeatures, cfg.DModel, emb, backend),
		firstBlock:     nn.NewTransformerEncoder(cfg.transformer(), backend),
		reduceDimZ:     nn.NewLinear(cfg.DModel, cfg.NFeatures, backend),
		embedding2:     nn.NewSaitsEmbedding(2*cfg.NFeatures, cfg.DModel, emb, backend),
		secondBlock:    nn.NewTransformerEncoder(cfg.transformer(), backend),
		reduceDimBeta:  nn.NewLinear(cfg.DModel, cfg.NFeatures, backend),
		reduceDimGamma: nn.NewLinear(cfg.NFeatures, cfg.NFeatures, backend),
		weightCombine:  nn.NewLinear(cfg.NFeatures+cfg.NSteps, cfg.NFeatures, backend),
		loss:           loss,
		backend:        backend,
	}
	s.params = concat(
		nn.Scope("embedding_1", s.embedding1.Parameters()),
		nn.Scope("first_block", s.firstBlock.Parameters()),
		nn.Scope("reduce_dim_z", s.reduceDimZ.Parameters()),
		nn.Scope("embedding_2", s.embedding2.Parameters()),
		nn.Scope("second_block", s.secondBlock.Parameters()),
		nn.Scope("reduce_dim_beta", s.reduceDimBeta.Parameters()),
		nn.Scope("reduce_dim_gamma", s.reduceDimGamma.Parameters()),
		nn.Scope("weight_combine", s.weightCombine.Parameters()),
	)
	return s, nil
}

// Config returns the configuration the model was built with.
func (s *SAITS[B]) Config() ModelConfig {
	return s.cfg
}

// Name returns "SAITS".
func (s *SAITS[B]) Name() string {
	return "SAITS"
}

// Forward runs both DMSA blocks and, in training, scores ORT over the three
// reconstructions and MIT over the final one.
func (s *SAITS[B]) Forward(batch *data.Batch[B], training bool) (*Output[B], error) {
	x, m := batch.X, batch.MissingMask

	var attnMask *tensor.Tensor[float32, B]
	if training || s.diagonalMask {
		attnMask = nn.DiagonalMask(x.Dim(1), s.backend)
	}

	h, _ := s.firstBlock.Forward(s.embedding1.Forward(x, m), attnMask)
	xTilde1 := s.reduceDimZ.Forward(h)
	xPrime := merge(x, m, xTilde1)

	h, attns := s.secondBlock.Forward(s.embedding2.Forward(xPrime, m), attnMask)
	xTilde2 := s.reduceDimGamma.Forward(s.reduceDimBeta.Forward(h).ReLU())

	// Average the last attention map over heads: [B, H, T, T] -> [B, T, T].
	attn := attns[len(attns)-1].MeanDim(1, false)
	eta := s.weightCombine.Forward(tensor.Cat([]*tensor.Tensor[float32, B]{m, attn}, 2)).Sigmoid()
	xTilde3 := eta.RSubScalar(1).Mul(xTilde2).Add(eta.Mul(xTilde1))

	out := &Output[B]{Imputed: merge(x, m, xTilde3), Reconstruction: xTilde3}
	if !training {
		return out, nil
	}
	if err := requireGroundTruth(batch); err != nil {
		return nil, err
	}
	ort, err := s.loss.ForwardORT([]*tensor.Tensor[float32, B]{xTilde1, xTilde2, xTilde3}, x, m)
	if err != nil {
		return nil, err
	}
	mit, err := s.loss.ForwardMIT(xTilde3, batch.XOri, batch.IndicatingMask)
	if err != nil {
		return nil, err
	}
	out.ORTLoss, out.MITLoss, out.Loss = ort, mit, ort.Add(mit)
	return out, nil
}

// Parameters returns all trainable parameters.
func (s *SAITS[B]) Parameters() []*nn.Parameter[B] {
	return s.params
}

// SetTraining toggles dropout.
func (s *SAITS[B]) SetTraining(training bool) {
	nn.SetTraining(training, s.embedding1, s.firstBlock, s.embedding2, s.secondBlock)
}

func concat[B tensor.Backend](groups ...[]*nn.Parameter[B]) []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, g := range groups {
		params = append(params, g...)
	}
	return params
}
