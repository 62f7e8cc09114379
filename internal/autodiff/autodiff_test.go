package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopots/gopots/internal/autodiff"
	"github.com/gopots/gopots/internal/backend/cpu"
	"github.com/gopots/gopots/internal/tensor"
)

func TestTapeRecordsOnlyWhileRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Ones[float32](tensor.Shape{2}, backend)

	_ = x.Add(x)
	assert.Equal(t, 0, backend.Tape().NumOps())

	backend.Tape().StartRecording()
	_ = x.Add(x)
	_ = x.Greater(x)
	assert.Equal(t, 1, backend.Tape().NumOps(), "comparisons are not recorded")

	backend.Tape().Clear()
	assert.Equal(t, 0, backend.Tape().NumOps())
}

func TestBackwardSeedsLossNotLastOp(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := tensor.MustFromSlice([]float32{2}, tensor.Shape{1}, backend)
	loss := x.Mul(x)
	_ = x.MulScalar(100) // recorded after the loss, must not contribute

	grads := autodiff.Backward(loss, backend)
	assert.InDelta(t, 4.0, grads[x.Raw()].AsFloat32()[0], 1e-6)
}

func TestBackwardAccumulatesReusedInputs(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := tensor.MustFromSlice([]float32{3}, tensor.Shape{1}, backend)
	y := x.Mul(x).Add(x) // dy/dx = 2x + 1

	grads := autodiff.Backward(y, backend)
	assert.InDelta(t, 7.0, grads[x.Raw()].AsFloat32()[0], 1e-6)
}

func TestDetachStopsGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := tensor.MustFromSlice([]float32{3}, tensor.Shape{1}, backend)
	y := x.Mul(x.Detach())

	grads := autodiff.Backward(y, backend)
	assert.InDelta(t, 3.0, grads[x.Raw()].AsFloat32()[0], 1e-6)
}

func TestBackwardPanicsOnEmptyTape(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Ones[float32](tensor.Shape{1}, backend)

	require.Panics(t, func() { autodiff.Backward(x, backend) })
}

func TestNameWrapsInner(t *testing.T) {
	assert.Equal(t, "Autodiff(CPU)", autodiff.New(cpu.New()).Name())
}
