package nn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopots/gopots/internal/autodiff"
	"github.com/gopots/gopots/internal/backend/cpu"
	"github.com/gopots/gopots/internal/tensor"
)

func TestSpectralBasisRoundTrip(t *testing.T) {
	backend := cpu.New()
	s := newSpectralBasis(4, backend)

	x := tensor.MustFromSlice([]float32{1, 2, 3, 4}, tensor.Shape{4, 1}, backend)
	re, im := s.forward(x)

	// X0 = Σx, X2 = x0 - x1 + x2 - x3, Re X1 = x0 - x2.
	assert.InDelta(t, 10, re.At(0, 0), 1e-5)
	assert.InDelta(t, -2, re.At(1, 0), 1e-5)
	assert.InDelta(t, -2, re.At(2, 0), 1e-5)
	assert.InDelta(t, 0, im.At(0, 0), 1e-5)
	assert.InDelta(t, 0, im.At(2, 0), 1e-5)

	y := s.inverse(re, im)
	assert.InDeltaSlice(t, []float32{1, 2, 3, 4}, y.Data(), 1e-5)
}

func TestSpectralBasisIgnoresUpperHalf(t *testing.T) {
	backend := cpu.New()
	s := newSpectralBasis(4, backend)
	// Column 3 of the inverse is never used.
	for tt := 0; tt < 4; tt++ {
		assert.Zero(t, s.invRe.At(tt, 3))
		assert.Zero(t, s.invIm.At(tt, 3))
		assert.Zero(t, s.invIm.At(tt, 0))
		assert.Zero(t, s.invIm.At(tt, 2))
	}
}

func TestChebyshevStack(t *testing.T) {
	backend := cpu.New()
	l := tensor.MustFromSlice([]float32{1, 0, 0, 2}, tensor.Shape{2, 2}, backend)
	stack := chebyshevStack(l)
	require.Equal(t, tensor.Shape{4, 2, 2}, stack.Shape())
	assert.Equal(t, []float32{
		0, 0, 0, 0, // zeros
		1, 0, 0, 2, // L
		2, 0, 0, 8, // 2L²
		3, 0, 0, 30, // 2L·(2L²) - L
	}, stack.Data())
}

func stemConfig() StemGNNConfig {
	return StemGNNConfig{Units: 6, StackCnt: 2, TimeStep: 5, MultiLayer: 2, Horizon: 5, Dropout: 0.2, LeakyRate: 0.2}
}

func TestStockBlockLayer(t *testing.T) {
	backend := cpu.New()
	first := NewStockBlockLayer(5, 2, 0, backend)
	second := NewStockBlockLayer(5, 2, 1, backend)

	x := tensor.Randn[float32](tensor.Shape{3, 1, 6, 5}, backend)
	mulL := tensor.Randn[float32](tensor.Shape{4, 6, 6}, backend)

	forecast, backcast := first.Forward(x, mulL)
	assert.Equal(t, tensor.Shape{3, 6, 5}, forecast.Shape())
	require.NotNil(t, backcast)
	assert.Equal(t, tensor.Shape{3, 1, 6, 5}, backcast.Shape())

	forecast, backcast = second.Forward(x, mulL)
	assert.Equal(t, tensor.Shape{3, 6, 5}, forecast.Shape())
	assert.Nil(t, backcast)

	assert.Contains(t, names(first.Parameters()), "backcast.weight")
	assert.NotContains(t, names(second.Parameters()), "backcast.weight")
	assert.Contains(t, names(first.Parameters()), "GLUs.5.linear_right.bias")
	assert.Equal(t, tensor.Shape{1, 4, 1, 10, 10}, first.Parameters()[0].Tensor().Shape())
}

func TestBackboneStemGNN(t *testing.T) {
	backend := cpu.New()
	m, err := NewBackboneStemGNN(stemConfig(), backend)
	require.NoError(t, err)

	x := tensor.Randn[float32](tensor.Shape{2, 5, 6}, backend)
	out, attention := m.Forward(x)
	assert.Equal(t, tensor.Shape{2, 5, 6}, out.Shape())
	require.Equal(t, tensor.Shape{6, 6}, attention.Shape())
	assert.False(t, out.HasNaN())

	// The adjacency is symmetric.
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			assert.InDelta(t, attention.At(i, j), attention.At(j, i), 1e-6)
		}
	}

	params := names(m.Parameters())
	assert.Contains(t, params, "weight_key")
	assert.Contains(t, params, "GRU.weight_hh_l0")
	assert.Contains(t, params, "stock_block.1.forecast_result.weight")
	assert.Contains(t, params, "fc.2.bias")

	assert.Panics(t, func() { m.Forward(tensor.Zeros[float32](tensor.Shape{2, 4, 6}, backend)) })
}

func TestBackboneStemGNNConfig(t *testing.T) {
	cfg := stemConfig()
	cfg.StackCnt = 1
	_, err := NewBackboneStemGNN(cfg, cpu.New())
	assert.Error(t, err)

	cfg = stemConfig()
	cfg.Horizon = 0
	_, err = NewBackboneStemGNN(cfg, cpu.New())
	assert.Error(t, err)
}

func TestBackboneStemGNNExtraStacks(t *testing.T) {
	cfg := stemConfig()
	cfg.StackCnt = 3
	m, err := NewBackboneStemGNN(cfg, cpu.New())
	require.NoError(t, err)
	out, _ := m.Forward(tensor.Randn[float32](tensor.Shape{1, 5, 6}, cpu.New()))
	assert.Equal(t, tensor.Shape{1, 5, 6}, out.Shape())
}

func TestBackboneStemGNNGradients(t *testing.T) {
	backend := autodiff.New(cpu.New())
	m, err := NewBackboneStemGNN(stemConfig(), backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	out, _ := m.Forward(tensor.Randn[float32](tensor.Shape{2, 5, 6}, backend))
	loss := out.Square().Mean()
	grads := autodiff.Backward(loss, backend)

	params := m.Parameters()
	CollectGrads(params, grads)
	for _, p := range params {
		if strings.HasPrefix(p.Name(), "stock_block.") && !strings.HasPrefix(p.Name(), "stock_block.0.") &&
			strings.Contains(p.Name(), ".backcast_short_cut.") {
			assert.Nil(t, p.Grad(), "%s is unused after the first block", p.Name())
			continue
		}
		require.NotNil(t, p.Grad(), p.Name())
		assert.Equal(t, p.Tensor().Shape(), p.Grad().Shape(), p.Name())
		assert.False(t, p.Grad().HasNaN(), p.Name())
	}
}
