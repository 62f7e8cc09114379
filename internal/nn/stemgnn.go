package nn

import (
	"fmt"
	"strconv"

	"github.com/gopots/gopots/internal/tensor"
)

// chebOrders is the number of Chebyshev polynomial orders in the graph
// Fourier transform, and also the DFT length of the spectral cell.
const chebOrders = 4

// StockBlockLayer is one spectral-temporal block of StemGNN. It applies the
// graph Fourier transform given by the Chebyshev stack, runs a DFT along
// the order axis, gates the real and imaginary parts through GLUs, inverts
// the DFT and mixes the orders with a learned weight.
type StockBlockLayer[B tensor.Backend] struct {
	timeStep int
	multi    int
	stackIdx int
	weight   *Parameter[B] // [1, 4, 1, mT, mT]
	forecast *Linear[B]
	result   *Linear[B]
	backcast *Linear[B] // first block only
	// shortCut exists in every block so state dicts keep the same keys for
	// all blocks, but only block 0 computes a backcast with it; later
	// blocks never receive a gradient for it.
	shortCut *Linear[B]
	glus     []*GLU[B]
	spectrum *spectralBasis[B]
}

// NewStockBlockLayer creates block number stackIdx. Only block 0 has a
// backcast head.
func NewStockBlockLayer[B tensor.Backend](timeStep, multiLayer, stackIdx int, backend B) *StockBlockLayer[B] {
	mT := timeStep * multiLayer
	weightShape := tensor.Shape{1, chebOrders, 1, mT, mT}
	fanIn, fanOut := fans(weightShape)

	s := &StockBlockLayer[B]{
		timeStep: timeStep,
		multi:    multiLayer,
		stackIdx: stackIdx,
		weight:   NewParameter("weight", XavierNormal(fanIn, fanOut, weightShape, 1, backend)),
		forecast: NewLinear(mT, mT, backend),
		result:   NewLinear(mT, timeStep, backend),
		shortCut: NewLinear(timeStep, timeStep, backend),
		spectrum: newSpectralBasis(chebOrders, backend),
	}
	Scope("forecast", s.forecast.Parameters())
	Scope("forecast_result", s.result.Parameters())
	Scope("backcast_short_cut", s.shortCut.Parameters())
	if stackIdx == 0 {
		s.backcast = NewLinear(mT, timeStep, backend)
		Scope("backcast", s.backcast.Parameters())
	}

	outChannels := timeStep * chebOrders * multiLayer
	for i := 0; i < 3; i++ {
		in := outChannels
		if i == 0 {
			in = timeStep * chebOrders
		}
		// Real and imaginary parts alternate.
		s.glus = append(s.glus, NewGLU(in, outChannels, backend), NewGLU(in, outChannels, backend))
	}
	for i, g := range s.glus {
		Scope("GLUs."+strconv.Itoa(i), g.Parameters())
	}
	return s
}

// Forward takes x [B, 1, N, T] and the Chebyshev stack mulL [4, N, N].
// It returns the block forecast [B, N, T] and, for the first block, the
// backcast [B, 1, N, T] (nil otherwise).
func (s *StockBlockLayer[B]) Forward(x, mulL *tensor.Tensor[float32, B]) (forecast, backcast *tensor.Tensor[float32, B]) {
	gfted := mulL.Unsqueeze(1).MatMul(x.Unsqueeze(1)) // [B, 4, 1, N, T]
	gconv := s.spectralCell(gfted).Unsqueeze(2)       // [B, 4, 1, N, mT]
	igfted := gconv.MatMul(s.weight.Tensor()).SumDim(1, false)

	source := s.forecast.Forward(igfted).Squeeze(1).Sigmoid()
	forecast = s.result.Forward(source)

	if s.backcast != nil {
		short := s.shortCut.Forward(x.Unsqueeze(1)).Squeeze(1)
		backcast = s.backcast.Forward(igfted).Sub(short).Sigmoid()
	}
	return forecast, backcast
}

func (s *StockBlockLayer[B]) spectralCell(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	batch, nodes, steps := x.Dim(0), x.Dim(3), x.Dim(4)
	re, im := s.spectrum.forward(x.Reshape(batch, chebOrders, nodes*steps))

	re = re.Reshape(batch, chebOrders, nodes, steps).Permute(0, 2, 1, 3).Reshape(batch, nodes, -1)
	im = im.Reshape(batch, chebOrders, nodes, steps).Permute(0, 2, 1, 3).Reshape(batch, nodes, -1)
	for i := 0; i < 3; i++ {
		re = s.glus[2*i].Forward(re)
		im = s.glus[2*i+1].Forward(im)
	}

	mT := s.timeStep * s.multi
	re = re.Reshape(batch, nodes, chebOrders, mT).Permute(0, 2, 1, 3).Reshape(batch, chebOrders, nodes*mT)
	im = im.Reshape(batch, nodes, chebOrders, mT).Permute(0, 2, 1, 3).Reshape(batch, chebOrders, nodes*mT)
	return s.spectrum.inverse(re, im).Reshape(batch, chebOrders, nodes, mT)
}

// Parameters returns all weights of the block.
func (s *StockBlockLayer[B]) Parameters() []*Parameter[B] {
	params := []*Parameter[B]{s.weight}
	params = append(params, s.forecast.Parameters()...)
	params = append(params, s.result.Parameters()...)
	if s.backcast != nil {
		params = append(params, s.backcast.Parameters()...)
	}
	params = append(params, s.shortCut.Parameters()...)
	for _, g := range s.glus {
		params = append(params, g.Parameters()...)
	}
	return params
}

// StemGNNConfig sizes a BackboneStemGNN.
type StemGNNConfig struct {
	Units      int     // Number of graph nodes; also the GRU hidden size.
	StackCnt   int     // Number of StockBlockLayers, at least 2.
	TimeStep   int     // Input window length.
	MultiLayer int     // Width multiplier of the spectral cell.
	Horizon    int     // Output length.
	Dropout    float64 // Dropout on the latent attention.
	LeakyRate  float64 // Negative slope of the attention LeakyReLU.
}

// BackboneStemGNN learns a latent correlation graph among the Units input
// channels and forecasts with stacked spectral-temporal blocks.
type BackboneStemGNN[B tensor.Backend] struct {
	cfg         StemGNNConfig
	weightKey   *Parameter[B] // [units, 1]
	weightQuery *Parameter[B] // [units, 1]
	gru         *GRU[B]
	blocks      []*StockBlockLayer[B]
	fc          *Sequential[B]
	dropout     *Dropout[B]
	backend     B
}

// NewBackboneStemGNN creates the backbone.
func NewBackboneStemGNN[B tensor.Backend](cfg StemGNNConfig, backend B) (*BackboneStemGNN[B], error) {
	if cfg.StackCnt < 2 {
		return nil, fmt.Errorf("stemgnn: stack count must be at least 2, got %d", cfg.StackCnt)
	}
	if cfg.Units <= 0 || cfg.TimeStep <= 0 || cfg.MultiLayer <= 0 || cfg.Horizon <= 0 {
		return nil, fmt.Errorf("stemgnn: sizes must be positive: %+v", cfg)
	}

	keyShape := tensor.Shape{cfg.Units, 1}
	fanIn, fanOut := fans(keyShape)
	m := &BackboneStemGNN[B]{
		cfg:         cfg,
		weightKey:   NewParameter("weight_key", Xavier(fanIn, fanOut, keyShape, 1.414, backend)),
		weightQuery: NewParameter("weight_query", Xavier(fanIn, fanOut, keyShape, 1.414, backend)),
		gru:         NewGRU(cfg.TimeStep, cfg.Units, backend),
		fc: NewSequential[B](
			NewLinear(cfg.TimeStep, cfg.TimeStep, backend),
			NewLeakyReLU[B](0.01),
			NewLinear(cfg.TimeStep, cfg.Horizon, backend),
		),
		dropout: NewDropout[B](cfg.Dropout),
		backend: backend,
	}
	Scope("GRU", m.gru.Parameters())
	for i := 0; i < cfg.StackCnt; i++ {
		block := NewStockBlockLayer(cfg.TimeStep, cfg.MultiLayer, i, backend)
		Scope("stock_block."+strconv.Itoa(i), block.Parameters())
		m.blocks = append(m.blocks, block)
	}
	Scope("fc", m.fc.Parameters())
	return m, nil
}

// Forward maps x [B, T, N] to the forecast [B, Horizon, N] and returns the
// learned symmetric adjacency [N, N].
func (m *BackboneStemGNN[B]) Forward(x *tensor.Tensor[float32, B]) (forecast, attention *tensor.Tensor[float32, B]) {
	if x.Rank() != 3 || x.Dim(1) != m.cfg.TimeStep || x.Dim(2) != m.cfg.Units {
		panic(fmt.Sprintf("BackboneStemGNN.Forward: expected [B, %d, %d], got %v", m.cfg.TimeStep, m.cfg.Units, x.Shape()))
	}
	mulL, attention := m.latentCorrelation(x)

	h := x.Unsqueeze(1).Permute(0, 1, 3, 2) // [B, 1, N, T]
	forecasts := make([]*tensor.Tensor[float32, B], 0, len(m.blocks))
	for _, block := range m.blocks {
		f, back := block.Forward(h, mulL)
		forecasts = append(forecasts, f)
		if back != nil {
			h = back
		}
	}

	out := m.fc.Forward(forecasts[0].Add(forecasts[1])) // [B, N, horizon]
	return out.Permute(0, 2, 1), attention
}

// latentCorrelation returns the Chebyshev stack [4, N, N] of the normalized
// Laplacian and the symmetric attention matrix it was built from.
func (m *BackboneStemGNN[B]) latentCorrelation(x *tensor.Tensor[float32, B]) (mulL, attention *tensor.Tensor[float32, B]) {
	seq, _ := m.gru.Forward(x.Permute(2, 0, 1), nil) // [N, B, units]
	attention = m.selfGraphAttention(seq.Permute(1, 0, 2))
	attention = attention.MeanDim(0, false)
	degree := attention.SumDim(1, false)
	attention = attention.Add(attention.T()).MulScalar(0.5)

	n := attention.Dim(0)
	eye := tensor.Eye[float32](n, m.backend)
	degreeL := eye.Mul(degree)
	degreeHat := eye.Div(degree.Sqrt().AddScalar(1e-7))
	laplacian := degreeHat.MatMul(degreeL.Sub(attention).MatMul(degreeHat))
	return chebyshevStack(laplacian), attention
}

// selfGraphAttention scores every pair of nodes from h [B, N, units]:
// e[b,i,j] = key[b,i] + query[b,j].
func (m *BackboneStemGNN[B]) selfGraphAttention(h *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	in := h.Permute(0, 2, 1)
	key := in.MatMul(m.weightKey.Tensor())     // [B, N, 1]
	query := in.MatMul(m.weightQuery.Tensor()) // [B, N, 1]
	scores := key.Add(query.Permute(0, 2, 1)).LeakyReLU(m.cfg.LeakyRate)
	return m.dropout.Forward(scores.Softmax(2))
}

// chebyshevStack builds [0, L, 2L², 2L·T₂ - L].
func chebyshevStack[B tensor.Backend](laplacian *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	l := laplacian.Unsqueeze(0)
	n := laplacian.Dim(0)
	first := tensor.Zeros[float32](tensor.Shape{1, n, n}, laplacian.Backend())
	second := l
	third := l.MatMul(second).MulScalar(2).Sub(first)
	fourth := l.MatMul(third).MulScalar(2).Sub(second)
	return tensor.Cat([]*tensor.Tensor[float32, B]{first, second, third, fourth}, 0)
}

// Parameters returns all weights.
func (m *BackboneStemGNN[B]) Parameters() []*Parameter[B] {
	params := []*Parameter[B]{m.weightKey, m.weightQuery}
	params = append(params, m.gru.Parameters()...)
	for _, b := range m.blocks {
		params = append(params, b.Parameters()...)
	}
	params = append(params, m.fc.Parameters()...)
	return params
}

// SetTraining toggles the attention dropout.
func (m *BackboneStemGNN[B]) SetTraining(training bool) {
	m.dropout.SetTraining(training)
}
