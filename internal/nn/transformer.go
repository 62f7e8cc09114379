package nn

import (
	"strconv"

	"github.com/gopots/gopots/internal/tensor"
)

// TransformerConfig sizes an encoder or decoder stack.
type TransformerConfig struct {
	NLayers     int
	DModel      int
	NHeads      int
	DK          int
	DV          int
	DFFN        int
	Dropout     float64
	AttnDropout float64
}

// EncoderLayer is self-attention followed by a position-wise feed-forward block:
//
//	h = LayerNorm(x + dropout(MHA(x, x, x)))
//	y = FFN(h)
type EncoderLayer[B tensor.Backend] struct {
	slfAttn   *MultiHeadAttention[B]
	dropout   *Dropout[B]
	layerNorm *LayerNorm[B]
	posFFN    *PositionWiseFeedForward[B]
}

// NewEncoderLayer creates one encoder layer.
func NewEncoderLayer[B tensor.Backend](cfg TransformerConfig, backend B) *EncoderLayer[B] {
	l := &EncoderLayer[B]{
		slfAttn:   newMHA(cfg, backend),
		dropout:   NewDropout[B](cfg.Dropout),
		layerNorm: NewLayerNorm(cfg.DModel, layerNormEps, backend),
		posFFN:    NewPositionWiseFeedForward(cfg.DModel, cfg.DFFN, cfg.Dropout, backend),
	}
	Scope("slf_attn", l.slfAttn.Parameters())
	Scope("layer_norm", l.layerNorm.Parameters())
	Scope("pos_ffn", l.posFFN.Parameters())
	return l
}

// Forward returns the layer output and the self-attention map.
func (l *EncoderLayer[B]) Forward(x, srcMask *tensor.Tensor[float32, B]) (out, attn *tensor.Tensor[float32, B]) {
	h, attn := l.slfAttn.Forward(x, x, x, srcMask)
	h = l.dropout.Forward(h).Add(x)
	h = l.layerNorm.Forward(h)
	return l.posFFN.Forward(h), attn
}

// Parameters returns all weights.
func (l *EncoderLayer[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	params = append(params, l.slfAttn.Parameters()...)
	params = append(params, l.layerNorm.Parameters()...)
	params = append(params, l.posFFN.Parameters()...)
	return params
}

// SetTraining toggles dropout in every sublayer.
func (l *EncoderLayer[B]) SetTraining(training bool) {
	SetTraining(training, l.slfAttn, l.dropout, l.posFFN)
}

// DecoderLayer is masked self-attention, attention over the encoder
// output, then a feed-forward block. The attention sublayers feed each
// other directly; the residual and normalization live in the FFN.
type DecoderLayer[B tensor.Backend] struct {
	slfAttn *MultiHeadAttention[B]
	encAttn *MultiHeadAttention[B]
	posFFN  *PositionWiseFeedForward[B]
}

// NewDecoderLayer creates one decoder layer.
func NewDecoderLayer[B tensor.Backend](cfg TransformerConfig, backend B) *DecoderLayer[B] {
	l := &DecoderLayer[B]{
		slfAttn: newMHA(cfg, backend),
		encAttn: newMHA(cfg, backend),
		posFFN:  NewPositionWiseFeedForward(cfg.DModel, cfg.DFFN, cfg.Dropout, backend),
	}
	Scope("slf_attn", l.slfAttn.Parameters())
	Scope("enc_attn", l.encAttn.Parameters())
	Scope("pos_ffn", l.posFFN.Parameters())
	return l
}

// Forward returns the layer output, the self-attention map and the
// encoder-attention map.
func (l *DecoderLayer[B]) Forward(dec, enc, slfMask, encMask *tensor.Tensor[float32, B]) (out, slfAttn, encAttn *tensor.Tensor[float32, B]) {
	h, slfAttn := l.slfAttn.Forward(dec, dec, dec, slfMask)
	h, encAttn = l.encAttn.Forward(h, enc, enc, encMask)
	return l.posFFN.Forward(h), slfAttn, encAttn
}

// Parameters returns all weights.
func (l *DecoderLayer[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	params = append(params, l.slfAttn.Parameters()...)
	params = append(params, l.encAttn.Parameters()...)
	params = append(params, l.posFFN.Parameters()...)
	return params
}

// SetTraining toggles dropout in every sublayer.
func (l *DecoderLayer[B]) SetTraining(training bool) {
	SetTraining(training, l.slfAttn, l.encAttn, l.posFFN)
}

// TransformerEncoder stacks NLayers encoder layers.
type TransformerEncoder[B tensor.Backend] struct {
	layers []*EncoderLayer[B]
}

// NewTransformerEncoder creates the stack.
func NewTransformerEncoder[B tensor.Backend](cfg TransformerConfig, backend B) *TransformerEncoder[B] {
	e := &TransformerEncoder[B]{layers: make([]*EncoderLayer[B], cfg.NLayers)}
	for i := range e.layers {
		e.layers[i] = NewEncoderLayer(cfg, backend)
		Scope("enc_layer_stack."+strconv.Itoa(i), e.layers[i].Parameters())
	}
	return e
}

// Forward runs x [B, L, dModel] through every layer and collects the
// attention map of each.
func (e *TransformerEncoder[B]) Forward(x, srcMask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], []*tensor.Tensor[float32, B]) {
	attns := make([]*tensor.Tensor[float32, B], 0, len(e.layers))
	out := x
	for _, layer := range e.layers {
		var attn *tensor.Tensor[float32, B]
		out, attn = layer.Forward(out, srcMask)
		attns = append(attns, attn)
	}
	return out, attns
}

// Parameters returns all weights.
func (e *TransformerEncoder[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, layer := range e.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}

// SetTraining toggles dropout in every layer.
func (e *TransformerEncoder[B]) SetTraining(training bool) {
	for _, layer := range e.layers {
		layer.SetTraining(training)
	}
}

// TransformerDecoder stacks NLayers decoder layers.
type TransformerDecoder[B tensor.Backend] struct {
	layers []*DecoderLayer[B]
}

// NewTransformerDecoder creates the stack.
func NewTransformerDecoder[B tensor.Backend](cfg TransformerConfig, backend B) *TransformerDecoder[B] {
	d := &TransformerDecoder[B]{layers: make([]*DecoderLayer[B], cfg.NLayers)}
	for i := range d.layers {
		d.layers[i] = NewDecoderLayer(cfg, backend)
		Scope("layer_stack."+strconv.Itoa(i), d.layers[i].Parameters())
	}
	return d
}

// Forward decodes trg [B, Lt, dModel] against encOut [B, Ls, dModel].
// It returns the output and the per-layer self- and encoder-attention maps.
func (d *TransformerDecoder[B]) Forward(
	trg, encOut, trgMask, srcMask *tensor.Tensor[float32, B],
) (out *tensor.Tensor[float32, B], slfAttns, encAttns []*tensor.Tensor[float32, B]) {
	out = trg
	for _, layer := range d.layers {
		var slf, enc *tensor.Tensor[float32, B]
		out, slf, enc = layer.Forward(out, encOut, trgMask, srcMask)
		slfAttns = append(slfAttns, slf)
		encAttns = append(encAttns, enc)
	}
	return out, slfAttns, encAttns
}

// Parameters returns all weights.
func (d *TransformerDecoder[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, layer := range d.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}

// SetTraining toggles dropout in every layer.
func (d *TransformerDecoder[B]) SetTraining(training bool) {
	for _, layer := range d.layers {
		layer.SetTraining(training)
	}
}

func newMHA[B tensor.Backend](cfg TransformerConfig, backend B) *MultiHeadAttention[B] {
	op := NewScaledDotProductAttention[B](defaultTemperature(cfg.DK), cfg.AttnDropout)
	return NewMultiHeadAttention[B](op, cfg.DModel, cfg.NHeads, cfg.DK, cfg.DV, backend)
}
