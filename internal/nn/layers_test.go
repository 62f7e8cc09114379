package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopots/gopots/internal/backend/cpu"
	"github.com/gopots/gopots/internal/tensor"
)

type cpuBackend = *cpu.CPUBackend

func names[B tensor.Backend](params []*Parameter[B]) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.Name()
	}
	return out
}

func TestLinear(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear(3, 2, backend)
	copy(layer.Weight().Tensor().Data(), []float32{1, 0, 0, 0, 1, 1})
	copy(layer.Bias().Tensor().Data(), []float32{0.5, -0.5})

	x := tensor.MustFromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{1, 2, 3}, backend)
	y := layer.Forward(x)

	assert.Equal(t, tensor.Shape{1, 2, 2}, y.Shape())
	assert.Equal(t, []float32{1.5, 4.5, 4.5, 10.5}, y.Data())
	assert.Equal(t, []string{"weight", "bias"}, names(layer.Parameters()))

	noBias := NewLinearNoBias(3, 2, backend)
	assert.Len(t, noBias.Parameters(), 1)
	assert.Nil(t, noBias.Bias())
	assert.Panics(t, func() { layer.Forward(tensor.Zeros[float32](tensor.Shape{2, 4}, backend)) })
}

func TestXavierBounds(t *testing.T) {
	backend := cpu.New()
	w := Xavier(10, 20, tensor.Shape{20, 10}, 1, backend)
	bound := float32(math.Sqrt(6.0 / 30))
	for _, v := range w.Data() {
		assert.LessOrEqual(t, v, bound)
		assert.GreaterOrEqual(t, v, -bound)
	}

	fanIn, fanOut := fans(tensor.Shape{1, 4, 1, 3, 3})
	assert.Equal(t, 4*9, fanIn)
	assert.Equal(t, 9, fanOut)
	fanIn, fanOut = fans(tensor.Shape{8, 1})
	assert.Equal(t, 1, fanIn)
	assert.Equal(t, 8, fanOut)
}

func TestSeedIsReproducible(t *testing.T) {
	backend := cpu.New()
	Seed(7)
	a := NewLinear(4, 4, backend).Weight().Tensor().Data()
	Seed(7)
	b := NewLinear(4, 4, backend).Weight().Tensor().Data()
	assert.Equal(t, a, b)
}

func TestLayerNorm(t *testing.T) {
	backend := cpu.New()
	ln := NewLayerNorm(4, 1e-6, backend)
	x := tensor.MustFromSlice([]float32{1, 2, 3, 4, -2, 0, 2, 4}, tensor.Shape{2, 4}, backend)
	y := ln.Forward(x).Data()

	for row := 0; row < 2; row++ {
		var mean, sq float64
		for _, v := range y[row*4 : row*4+4] {
			mean += float64(v)
			sq += float64(v) * float64(v)
		}
		assert.InDelta(t, 0, mean/4, 1e-5)
		assert.InDelta(t, 1, sq/4, 1e-4)
	}
	assert.Equal(t, []string{"weight", "bias"}, names(ln.Parameters()))
}

func TestDropout(t *testing.T) {
	backend := cpu.New()
	x := tensor.Ones[float32](tensor.Shape{1000}, backend)

	d := NewDropout[cpuBackend](0.5)
	y := d.Forward(x).Data()
	zeros := 0
	for _, v := range y {
		if v == 0 {
			zeros++
		} else {
			assert.InDelta(t, 2, v, 1e-6)
		}
	}
	assert.InDelta(t, 500, zeros, 100)

	d.SetTraining(false)
	assert.Same(t, x, d.Forward(x))
	assert.Panics(t, func() { NewDropout[cpuBackend](1) })
}

func TestSequential(t *testing.T) {
	backend := cpu.New()
	seq := NewSequential[cpuBackend](
		NewLinear(2, 3, backend),
		NewReLU[cpuBackend](),
		NewLinear(3, 1, backend),
	)
	assert.Equal(t, 3, seq.Len())
	assert.Equal(t, []string{"0.weight", "0.bias", "2.weight", "2.bias"}, names(seq.Parameters()))
	y := seq.Forward(tensor.Ones[float32](tensor.Shape{5, 2}, backend))
	assert.Equal(t, tensor.Shape{5, 1}, y.Shape())
	assert.Equal(t, 2*3+3+3*1+1, NumParameters(seq.Parameters()))
}

func TestActivations(t *testing.T) {
	backend := cpu.New()
	x := tensor.MustFromSlice([]float32{-2, 0, 2}, tensor.Shape{3}, backend)

	assert.Equal(t, []float32{0, 0, 2}, NewReLU[cpuBackend]().Forward(x).Data())
	assert.InDeltaSlice(t, []float32{-0.02, 0, 2}, NewLeakyReLU[cpuBackend](0.01).Forward(x).Data(), 1e-6)
	assert.InDelta(t, 0.5, NewSigmoid[cpuBackend]().Forward(x).Data()[1], 1e-6)
	assert.InDelta(t, math.Tanh(2), NewTanh[cpuBackend]().Forward(x).Data()[2], 1e-6)
}

func TestPositionalEncoding(t *testing.T) {
	backend := cpu.New()
	pe := NewPositionalEncoding(4, 10, backend)
	table := pe.Table(3)
	require.Equal(t, tensor.Shape{1, 3, 4}, table.Shape())

	// Position 0: sin(0), cos(0) alternating.
	assert.Equal(t, []float32{0, 1, 0, 1}, table.Data()[:4])
	// Position 1, dim 2: sin(1 / 10000^(2/4)).
	assert.InDelta(t, math.Sin(1.0/100), table.At(0, 1, 2), 1e-6)
	assert.InDelta(t, math.Cos(1.0/100), table.At(0, 1, 3), 1e-6)

	x := tensor.Ones[float32](tensor.Shape{2, 3, 4}, backend)
	y := pe.Forward(x)
	assert.InDelta(t, 2, y.At(1, 0, 1), 1e-6)
	assert.Panics(t, func() { pe.Table(11) })

	only := pe.ReturnOnly(x)
	require.Equal(t, tensor.Shape{2, 3, 4}, only.Shape())
	assert.Equal(t, table.Data(), only.Data()[:12])
	assert.Equal(t, table.Data(), only.Data()[12:])
}

func TestSaitsEmbedding(t *testing.T) {
	backend := cpu.New()
	emb := NewSaitsEmbedding(6, 8, SaitsEmbeddingConfig{WithPos: true, Dropout: 0.1}, backend)
	assert.Equal(t, []string{"embedding_layer.weight", "embedding_layer.bias"}, names(emb.Parameters()))

	x := tensor.Zeros[float32](tensor.Shape{2, 5, 3}, backend)
	m := tensor.Ones[float32](tensor.Shape{2, 5, 3}, backend)
	h := emb.Forward(x, m)
	assert.Equal(t, tensor.Shape{2, 5, 8}, h.Shape())

	// Without a mask the input must already carry dIn features.
	emb.SetTraining(false)
	h = emb.Forward(tensor.Zeros[float32](tensor.Shape{2, 5, 6}, backend), nil)
	assert.Equal(t, tensor.Shape{2, 5, 8}, h.Shape())
	// Zero input and zero bias leave only the positional table.
	assert.InDelta(t, 1, h.At(0, 0, 1), 1e-6)
}

func TestGLU(t *testing.T) {
	backend := cpu.New()
	g := NewGLU(4, 3, backend)
	for _, p := range g.Parameters() {
		clear(p.Tensor().Data())
	}
	copy(g.left.Bias().Tensor().Data(), []float32{2, 2, 2})
	y := g.Forward(tensor.Ones[float32](tensor.Shape{2, 4}, backend))
	// left = 2, right = 0 -> 2 * sigmoid(0)
	assert.InDeltaSlice(t, []float32{1, 1, 1, 1, 1, 1}, y.Data(), 1e-6)
	assert.Equal(t, []string{
		"linear_left.weight", "linear_left.bias", "linear_right.weight", "linear_right.bias",
	}, names(g.Parameters()))
}

func TestGRUStep(t *testing.T) {
	backend := cpu.New()
	gru := NewGRU(1, 1, backend)
	// weight_ih = [r, z, n], all other weights zero.
	copy(gru.weightIH.Tensor().Data(), []float32{0, 0, 1})
	clear(gru.weightHH.Tensor().Data())
	clear(gru.biasIH.Tensor().Data())
	clear(gru.biasHH.Tensor().Data())

	x := tensor.MustFromSlice([]float32{1, 1}, tensor.Shape{2, 1, 1}, backend)
	out, h := gru.Forward(x, nil)
	require.Equal(t, tensor.Shape{2, 1, 1}, out.Shape())

	// z = 0.5 at every step, n = tanh(1).
	n := math.Tanh(1)
	h1 := 0.5 * n
	h2 := n + 0.5*(h1-n)
	assert.InDelta(t, h1, out.At(0, 0, 0), 1e-6)
	assert.InDelta(t, h2, out.At(1, 0, 0), 1e-6)
	assert.InDelta(t, h2, h.At(0, 0), 1e-6)
	assert.Panics(t, func() { gru.Forward(tensor.Zeros[float32](tensor.Shape{2, 1, 3}, backend), nil) })
}

func TestGRUShapes(t *testing.T) {
	backend := cpu.New()
	gru := NewGRU(5, 7, backend)
	out, h := gru.Forward(tensor.Ones[float32](tensor.Shape{4, 3, 5}, backend), nil)
	assert.Equal(t, tensor.Shape{4, 3, 7}, out.Shape())
	assert.Equal(t, tensor.Shape{3, 7}, h.Shape())
	assert.Equal(t, []string{"weight_ih_l0", "weight_hh_l0", "bias_ih_l0", "bias_hh_l0"}, names(gru.Parameters()))
}
