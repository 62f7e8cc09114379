package nn

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopots/gopots/internal/autodiff"
	"github.com/gopots/gopots/internal/backend/cpu"
	"github.com/gopots/gopots/internal/tensor"
)

func lossInputs(backend cpuBackend) (pred, target, mask *tensor.Tensor[float32, cpuBackend]) {
	shape := tensor.Shape{1, 3, 1}
	pred = tensor.MustFromSlice([]float32{1, 2, 3}, shape, backend)
	target = tensor.MustFromSlice([]float32{1, 1, -1}, shape, backend)
	mask = tensor.MustFromSlice([]float32{0, 1, 1}, shape, backend)
	return pred, target, mask
}

func TestCriteria(t *testing.T) {
	backend := cpu.New()
	pred, target, mask := lossInputs(backend)

	tests := []struct {
		criterion Criterion[cpuBackend]
		masked    float64
		unmasked  float64
	}{
		{NewMAE[cpuBackend](), (1 + 4) / 2.0, (0 + 1 + 4) / 3.0},
		{NewMSE[cpuBackend](), (1 + 16) / 2.0, (0 + 1 + 16) / 3.0},
		{NewRMSE[cpuBackend](), math.Sqrt(17 / 2.0), math.Sqrt(17 / 3.0)},
		{NewMRE[cpuBackend](), 5 / 2.0, 5 / 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.criterion.Name(), func(t *testing.T) {
			got, err := tt.criterion.Forward(pred, target, mask)
			require.NoError(t, err)
			assert.InDelta(t, tt.masked, got.Item(), 1e-5)

			got, err = tt.criterion.Forward(pred, target, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.unmasked, got.Item(), 1e-5)
		})
	}
}

func TestEmptyMaskIsFinite(t *testing.T) {
	backend := cpu.New()
	pred, target, _ := lossInputs(backend)
	zero := tensor.Zeros[float32](pred.Shape(), backend)
	got, err := NewMAE[cpuBackend]().Forward(pred, target, zero)
	require.NoError(t, err)
	assert.Equal(t, float32(0), got.Item())
}

func TestBaseCriterionNotImplemented(t *testing.T) {
	backend := cpu.New()
	pred, target, mask := lossInputs(backend)
	base := NewBaseCriterion[cpuBackend]("Base")
	_, err := base.Forward(pred, target, mask)
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.Equal(t, "Base", base.Name())
}

func TestCriterionInputErrors(t *testing.T) {
	backend := cpu.New()
	pred, target, _ := lossInputs(backend)

	_, err := NewMSE[cpuBackend]().Forward(pred, tensor.Zeros[float32](tensor.Shape{3}, backend), nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewMAE[cpuBackend]().Forward(pred, target, tensor.Zeros[float32](tensor.Shape{1, 3}, backend))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	nan := tensor.MustFromSlice([]float32{float32(math.NaN()), 0, 0}, pred.Shape(), backend)
	_, err = NewRMSE[cpuBackend]().Forward(nan, target, nil)
	assert.ErrorIs(t, err, ErrNaN)
}

func TestMSEGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	shape := tensor.Shape{3}
	pred := tensor.MustFromSlice([]float32{1, 2, 3}, shape, backend)
	target := tensor.MustFromSlice([]float32{0, 0, 0}, shape, backend)
	mask := tensor.MustFromSlice([]float32{1, 0, 1}, shape, backend)

	loss, err := NewMSE[*autodiff.AutodiffBackend[cpuBackend]]().Forward(pred, target, mask)
	require.NoError(t, err)
	grads := autodiff.Backward(loss, backend)

	// d/dp Σ(p-t)²m / Σm = 2(p-t)m / Σm
	assert.InDeltaSlice(t, []float32{1, 0, 3}, grads[pred.Raw()].AsFloat32(), 1e-4)
}

func TestQuantileCRPS(t *testing.T) {
	backend := cpu.New()
	// batch 1, 2 samples, 2 steps
	pred := tensor.MustFromSlice([]float32{3, 3, 3, 3}, tensor.Shape{1, 2, 2}, backend)
	target := tensor.MustFromSlice([]float32{2, 2}, tensor.Shape{1, 2}, backend)
	mask := tensor.Ones[float32](tensor.Shape{1, 2}, backend)

	got, err := NewQuantileCRPS[cpuBackend]().Forward(pred, target, mask)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Item(), 1e-5)

	_, err = NewQuantileCRPS[cpuBackend]().Forward(target, target, mask)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// Summed over a single feature axis of size 2: target 4, forecast 6.
	got, err = NewQuantileCRPSSum[cpuBackend]().Forward(pred, target, mask)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Item(), 1e-5)
}

func TestCrossEntropy(t *testing.T) {
	backend := cpu.New()
	logits := tensor.Zeros[float32](tensor.Shape{2, 4}, backend)
	targets := tensor.MustFromSlice([]float32{0, 3}, tensor.Shape{2}, backend)

	ce := NewCrossEntropy[cpuBackend]()
	got, err := ce.Forward(logits, targets, nil)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(4), got.Item(), 1e-5)

	_, err = ce.Forward(logits, tensor.MustFromSlice([]float32{0, 4}, tensor.Shape{2}, backend), nil)
	assert.Error(t, err)
	_, err = ce.Forward(logits, tensor.MustFromSlice([]float32{0}, tensor.Shape{1}, backend), nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCriterionByName(t *testing.T) {
	for _, name := range []string{"MAE", "MSE", "RMSE", "MRE", "QuantileCRPS", "QuantileCRPSSum", "CrossEntropy"} {
		c, err := CriterionByName[cpuBackend](name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
	_, err := CriterionByName[cpuBackend]("Huber")
	assert.Error(t, err)
}

func TestSaitsLoss(t *testing.T) {
	backend := cpu.New()
	pred, target, mask := lossInputs(backend)
	indicating := tensor.MustFromSlice([]float32{1, 0, 0}, pred.Shape(), backend)

	l := NewSaitsLoss[cpuBackend](1, 2, nil)
	loss, ort, mit, err := l.Forward(pred, target, mask, indicating)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, ort.Item(), 1e-5)
	assert.InDelta(t, 0, mit.Item(), 1e-5)
	assert.InDelta(t, 2.5, loss.Item(), 1e-5)
	assert.Equal(t, "MAE", l.Criterion().Name())

	// ORT over several reconstructions is their mean.
	ort, err = l.ForwardORT([]*tensor.Tensor[float32, cpuBackend]{pred, target}, target, mask)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, ort.Item(), 1e-5)

	_, err = l.ForwardORT(nil, target, mask)
	assert.Error(t, err)
}

type fakeOptimizer struct {
	state map[string]*tensor.RawTensor
	lr    float32
}

func (f *fakeOptimizer) Name() string                            { return "Fake" }
func (f *fakeOptimizer) StateDict() map[string]*tensor.RawTensor { return f.state }
func (f *fakeOptimizer) GetLR() float32                          { return f.lr }
func (f *fakeOptimizer) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	f.state = sd
	return nil
}

func TestStateDict(t *testing.T) {
	backend := cpu.New()
	a := NewLinear(3, 2, backend)
	b := NewLinear(3, 2, backend)

	require.NoError(t, LoadStateDict(b.Parameters(), CloneStateDict(a.Parameters())))
	assert.Equal(t, a.Weight().Tensor().Data(), b.Weight().Tensor().Data())

	sd := StateDict(a.Parameters())
	assert.Same(t, a.Weight().Tensor().Raw(), sd["weight"])

	err := LoadStateDict(b.Parameters(), map[string]*tensor.RawTensor{"weight": sd["weight"]})
	assert.Error(t, err, "missing bias")

	wrong := NewLinear(4, 2, backend)
	assert.Error(t, LoadStateDict(wrong.Parameters(), sd))
}

func TestCheckpointRoundTrip(t *testing.T) {
	backend := cpu.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "ckpt.pots")

	model := NewLinear(3, 2, backend)
	moment := tensor.MustRaw(tensor.Shape{2}, tensor.Float32)
	copy(moment.AsFloat32(), []float32{0.1, 0.2})
	opt := &fakeOptimizer{state: map[string]*tensor.RawTensor{"m.0": moment}, lr: 0.01}

	ckpt := &Checkpoint[cpuBackend]{
		ModelType: "Linear", Params: model.Parameters(), Optimizer: opt,
		Epoch: 3, Step: 30, Loss: 0.5, RunID: "abc",
	}
	require.NoError(t, ckpt.Save(path))

	restored := NewLinear(3, 2, backend)
	restoredOpt := &fakeOptimizer{}
	got, err := LoadCheckpoint(path, restored.Parameters(), restoredOpt)
	require.NoError(t, err)

	assert.Equal(t, 3, got.Epoch)
	assert.Equal(t, int64(30), got.Step)
	assert.Equal(t, "abc", got.RunID)
	assert.Equal(t, "Linear", got.ModelType)
	assert.Equal(t, model.Weight().Tensor().Data(), restored.Weight().Tensor().Data())
	require.Contains(t, restoredOpt.state, "m.0")
	assert.Equal(t, []float32{0.1, 0.2}, restoredOpt.state["m.0"].AsFloat32())

	// Plain weight files are not checkpoints but load as weights.
	weights := filepath.Join(dir, "model.pots")
	require.NoError(t, SaveWeights(weights, "Linear", model.Parameters(), map[string]string{"k": "v"}))
	_, err = LoadCheckpoint(weights, restored.Parameters(), nil)
	assert.ErrorIs(t, err, ErrNotCheckpoint)
	header, err := LoadWeights(weights, restored.Parameters())
	require.NoError(t, err)
	assert.Equal(t, "v", header.Metadata["k"])
}
