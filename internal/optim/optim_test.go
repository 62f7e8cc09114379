package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopots/gopots/internal/autodiff"
	"github.com/gopots/gopots/internal/backend/cpu"
	"github.com/gopots/gopots/internal/nn"
	"github.com/gopots/gopots/internal/optim"
	"github.com/gopots/gopots/internal/tensor"
)

type backendT = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func param(t *testing.T, name string, values ...float32) (*nn.Parameter[backendT], backendT) {
	t.Helper()
	backend := autodiff.New(cpu.New())
	x, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	return nn.NewParameter(name, x), backend
}

func gradOf(p *nn.Parameter[backendT], values ...float32) map[*tensor.RawTensor]*tensor.RawTensor {
	g := tensor.MustRaw(tensor.Shape{len(values)}, tensor.Float32)
	copy(g.AsFloat32(), values)
	return map[*tensor.RawTensor]*tensor.RawTensor{p.Tensor().Raw(): g}
}

func value(p *nn.Parameter[backendT]) float32 {
	return p.Tensor().Raw().AsFloat32()[0]
}

func TestSGD(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		p, backend := param(t, "x", 2)
		opt := optim.NewSGD([]*nn.Parameter[backendT]{p}, optim.SGDConfig{LR: 0.1}, backend)
		opt.Step(gradOf(p, 1))
		assert.InDelta(t, 1.9, value(p), 1e-6)
	})

	t.Run("momentum", func(t *testing.T) {
		p, backend := param(t, "x", 1)
		opt := optim.NewSGD([]*nn.Parameter[backendT]{p}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
		opt.Step(gradOf(p, 1))
		assert.InDelta(t, 0.9, value(p), 1e-6)
		// v = 0.9 * 1 + 1 = 1.9
		opt.Step(gradOf(p, 1))
		assert.InDelta(t, 0.71, value(p), 1e-5)
	})

	t.Run("weight decay", func(t *testing.T) {
		p, backend := param(t, "x", 1)
		opt := optim.NewSGD([]*nn.Parameter[backendT]{p}, optim.SGDConfig{LR: 0.1, WeightDecay: 0.5}, backend)
		opt.Step(gradOf(p, 0))
		assert.InDelta(t, 0.95, value(p), 1e-6)
	})

	t.Run("missing gradient", func(t *testing.T) {
		p, backend := param(t, "x", 1)
		opt := optim.NewSGD([]*nn.Parameter[backendT]{p}, optim.SGDConfig{LR: 0.1}, backend)
		opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{})
		assert.Equal(t, float32(1), value(p))
	})
}

func TestAdam(t *testing.T) {
	t.Run("first step", func(t *testing.T) {
		p, backend := param(t, "x", 1)
		opt := optim.NewAdam([]*nn.Parameter[backendT]{p}, optim.AdamConfig{LR: 0.001}, backend)
		opt.Step(gradOf(p, 1))
		// Bias correction makes the first step exactly lr.
		assert.InDelta(t, 0.999, value(p), 1e-5)
		assert.Equal(t, 1, opt.GetTimestep())
		assert.Equal(t, "Adam", opt.Name())
	})

	t.Run("L2 weight decay", func(t *testing.T) {
		p, backend := param(t, "x", 1)
		opt := optim.NewAdam([]*nn.Parameter[backendT]{p}, optim.AdamConfig{LR: 0.1, WeightDecay: 0.1}, backend)
		opt.Step(gradOf(p, 0))
		assert.InDelta(t, 0.9, value(p), 1e-4)
	})

	t.Run("decoupled weight decay", func(t *testing.T) {
		p, backend := param(t, "x", 1)
		opt := optim.NewAdamW([]*nn.Parameter[backendT]{p}, optim.AdamConfig{LR: 0.1, WeightDecay: 0.1}, backend)
		opt.Step(gradOf(p, 0))
		assert.InDelta(t, 0.99, value(p), 1e-6)
		assert.Equal(t, "AdamW", opt.Name())
	})
}

func TestAdamWDefaultDecay(t *testing.T) {
	p, backend := param(t, "x", 1)
	opt := optim.NewAdamW([]*nn.Parameter[backendT]{p}, optim.AdamConfig{LR: 1}, backend)
	opt.Step(gradOf(p, 0))
	assert.InDelta(t, 0.99, value(p), 1e-6)
}

func TestConvergenceQuadratic(t *testing.T) {
	// f(x) = x², df/dx = 2x
	build := map[string]func(p *nn.Parameter[backendT], b backendT) optim.Optimizer{
		"SGD": func(p *nn.Parameter[backendT], b backendT) optim.Optimizer {
			return optim.NewSGD([]*nn.Parameter[backendT]{p}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, b)
		},
		"Adam": func(p *nn.Parameter[backendT], b backendT) optim.Optimizer {
			return optim.NewAdam([]*nn.Parameter[backendT]{p}, optim.AdamConfig{LR: 0.1}, b)
		},
		"AdamW": func(p *nn.Parameter[backendT], b backendT) optim.Optimizer {
			return optim.NewAdamW([]*nn.Parameter[backendT]{p}, optim.AdamConfig{LR: 0.1}, b)
		},
	}
	for name, newOpt := range build {
		t.Run(name, func(t *testing.T) {
			p, backend := param(t, "x", 3)
			opt := newOpt(p, backend)
			for range 200 {
				opt.Step(gradOf(p, 2*value(p)))
			}
			assert.InDelta(t, 0, value(p), 0.1)
		})
	}
}

func TestAutodiffGradientsDriveStep(t *testing.T) {
	p, backend := param(t, "x", 1, 2)
	opt := optim.NewSGD([]*nn.Parameter[backendT]{p}, optim.SGDConfig{LR: 0.5}, backend)

	backend.Tape().StartRecording()
	loss := p.Tensor().Square().Sum()
	grads := autodiff.Backward(loss, backend)
	opt.Step(grads)

	// x - 0.5 * 2x = 0
	assert.InDeltaSlice(t, []float32{0, 0}, p.Tensor().Data(), 1e-6)
}

func TestStateDictRoundTrip(t *testing.T) {
	for _, name := range []string{"SGD", "Adam", "AdamW"} {
		t.Run(name, func(t *testing.T) {
			p1, backend := param(t, "x", 1, -1)
			p2, _ := param(t, "x", 1, -1)
			opt1, err := optim.New(name, []*nn.Parameter[backendT]{p1}, 0.01, 0, backend)
			require.NoError(t, err)
			opt2, err := optim.New(name, []*nn.Parameter[backendT]{p2}, 0.01, 0, backend)
			require.NoError(t, err)

			opt1.Step(gradOf(p1, 0.5, 0.25))
			opt1.Step(gradOf(p1, 0.5, 0.25))
			copy(p2.Tensor().Data(), p1.Tensor().Data())
			require.NoError(t, opt2.LoadStateDict(opt1.StateDict()))

			opt1.Step(gradOf(p1, 1, 1))
			opt2.Step(gradOf(p2, 1, 1))
			assert.InDeltaSlice(t, p1.Tensor().Data(), p2.Tensor().Data(), 1e-7)
		})
	}
}

func TestLoadStateDictErrors(t *testing.T) {
	p, backend := param(t, "x", 1, 2)
	adam := optim.NewAdam([]*nn.Parameter[backendT]{p}, optim.AdamConfig{}, backend)
	assert.Error(t, adam.LoadStateDict(map[string]*tensor.RawTensor{}), "missing step")

	sgd := optim.NewSGD([]*nn.Parameter[backendT]{p}, optim.SGDConfig{Momentum: 0.9}, backend)
	bad := tensor.MustRaw(tensor.Shape{3}, tensor.Float32)
	assert.Error(t, sgd.LoadStateDict(map[string]*tensor.RawTensor{"velocity.0": bad}))
}

func TestNewUnknown(t *testing.T) {
	p, backend := param(t, "x", 1)
	_, err := optim.New("RMSprop", []*nn.Parameter[backendT]{p}, 0.01, 0, backend)
	assert.Error(t, err)
}

func TestZeroGradAndLR(t *testing.T) {
	p, backend := param(t, "x", 1)
	p.SetGrad(tensor.Ones[float32](tensor.Shape{1}, backend))

	opt := optim.NewAdam([]*nn.Parameter[backendT]{p}, optim.AdamConfig{LR: 0.01}, backend)
	opt.ZeroGrad()
	assert.Nil(t, p.Grad())

	assert.Equal(t, float32(0.01), opt.GetLR())
	opt.SetLR(0.001)
	assert.Equal(t, float32(0.001), opt.GetLR())
}

func TestStepLR(t *testing.T) {
	p, backend := param(t, "x", 1)
	opt := optim.NewSGD([]*nn.Parameter[backendT]{p}, optim.SGDConfig{LR: 0.1}, backend)
	sched := optim.NewStepLR(opt, 2, 0.5)

	sched.Step()
	assert.InDelta(t, 0.1, opt.GetLR(), 1e-7)
	sched.Step()
	assert.InDelta(t, 0.05, opt.GetLR(), 1e-7)
	sched.Step()
	sched.Step()
	assert.InDelta(t, 0.025, opt.GetLR(), 1e-7)
	assert.Equal(t, 4, sched.Epoch())

	assert.Panics(t, func() { optim.NewStepLR(opt, 0, 0.5) })
}

var _ nn.OptimizerState = optim.Optimizer(nil)
