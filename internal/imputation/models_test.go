package imputation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopots/gopots/internal/autodiff"
	"github.com/gopots/gopots/internal/backend/cpu"
	"github.com/gopots/gopots/internal/data"
	"github.com/gopots/gopots/internal/nn"
)

type backendT = *autodiff.AutodiffBackend[*cpu.CPUBackend]

const (
	testSteps    = 6
	testFeatures = 3
)

func smallConfig(kind string) ModelConfig {
	return ModelConfig{
		Kind:                  kind,
		NSteps:                testSteps,
		NFeatures:             testFeatures,
		NLayers:               1,
		DModel:                8,
		NHeads:                2,
		DK:                    4,
		DV:                    4,
		DFFN:                  16,
		Dropout:               0.1,
		NStacks:               2,
		DiagonalAttentionMask: true,
	}
}

func trainingBatch(t *testing.T, backend backendT) *data.Batch[backendT] {
	t.Helper()
	d, err := data.RandomWalk(4, testSteps, testFeatures, 0.2, 1)
	require.NoError(t, err)
	p, err := data.NewMITDataset(d, 0.2, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return data.Gather(p, []int{0, 1, 2, 3}, backend)
}

func TestModelConfigValidate(t *testing.T) {
	require.NoError(t, smallConfig("SAITS").Validate())
	require.NoError(t, smallConfig("transformer").Validate())
	require.NoError(t, smallConfig("StemGNN").Validate())

	tests := map[string]func(c *ModelConfig){
		"no steps":      func(c *ModelConfig) { c.NSteps = 0 },
		"no layers":     func(c *ModelConfig) { c.NLayers = 0 },
		"dropout":       func(c *ModelConfig) { c.Dropout = 1 },
		"no heads":      func(c *ModelConfig) { c.NHeads = 0 },
		"weights":       func(c *ModelConfig) { c.MITWeight = -1 },
		"unknown model": func(c *ModelConfig) { c.Kind = "BRITS" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := smallConfig("SAITS")
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	stem := smallConfig("StemGNN")
	stem.NStacks = 1
	assert.Error(t, stem.Validate())

	bad := smallConfig("CSDI")
	_, err := NewModel(bad, autodiff.New(cpu.New()))
	assert.ErrorIs(t, err, ErrUnknownModel)

	loss := smallConfig("SAITS")
	loss.TrainingLoss = "Huber"
	_, err = NewModel(loss, autodiff.New(cpu.New()))
	assert.Error(t, err)
}

func TestModelsForward(t *testing.T) {
	for _, kind := range []string{"SAITS", "Transformer", "StemGNN"} {
		t.Run(kind, func(t *testing.T) {
			nn.Seed(1)
			backend := autodiff.New(cpu.New())
			model, err := NewModel(smallConfig(kind), backend)
			require.NoError(t, err)
			assert.Equal(t, kind, model.Name())
			assert.Equal(t, testSteps, model.Config().NSteps)

			batch := trainingBatch(t, backend)
			out, err := model.Forward(batch, true)
			require.NoError(t, err)
			assert.Equal(t, []int{4, testSteps, testFeatures}, []int(out.Imputed.Shape()))
			assert.Equal(t, []int{4, testSteps, testFeatures}, []int(out.Reconstruction.Shape()))

			require.NotNil(t, out.Loss)
			loss := float64(out.Loss.Item())
			assert.False(t, math.IsNaN(loss))
			assert.InDelta(t, loss, float64(out.ORTLoss.Item()+out.MITLoss.Item()), 1e-5)

			x, m, imputed := batch.X.Data(), batch.MissingMask.Data(), out.Imputed.Data()
			for i := range x {
				if m[i] == 1 {
					assert.Equal(t, x[i], imputed[i])
				}
			}

			model.SetTraining(false)
			out, err = model.Forward(batch, false)
			require.NoError(t, err)
			assert.Nil(t, out.Loss)
			assert.False(t, out.Imputed.HasNaN())
		})
	}
}

func TestModelsTrainable(t *testing.T) {
	for _, kind := range []string{"SAITS", "Transformer", "StemGNN"} {
		t.Run(kind, func(t *testing.T) {
			nn.Seed(2)
			backend := autodiff.New(cpu.New())
			model, err := NewModel(smallConfig(kind), backend)
			require.NoError(t, err)
			batch := trainingBatch(t, backend)

			backend.Tape().StartRecording()
			out, err := model.Forward(batch, true)
			require.NoError(t, err)
			grads := autodiff.Backward(out.Loss, backend)
			backend.Tape().StopRecording()

			withGrad := 0
			for _, p := range model.Parameters() {
				if _, ok := grads[p.Tensor().Raw()]; ok {
					withGrad++
				}
			}
			assert.Greater(t, withGrad, len(model.Parameters())/2)
		})
	}
}

func TestForwardNeedsGroundTruth(t *testing.T) {
	backend := autodiff.New(cpu.New())
	model, err := NewTransformer(smallConfig("Transformer"), backend)
	require.NoError(t, err)

	d, err := data.RandomWalk(2, testSteps, testFeatures, 0.2, 1)
	require.NoError(t, err)
	d.XOri = nil
	p, err := data.NewEvalDataset(d)
	require.NoError(t, err)

	_, err = model.Forward(data.Gather(p, []int{0, 1}, backend), true)
	assert.ErrorIs(t, err, ErrNoGroundTruth)
}

func TestParameterNames(t *testing.T) {
	backend := autodiff.New(cpu.New())
	saits, err := NewSAITS(smallConfig("SAITS"), backend)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, p := range saits.Parameters() {
		assert.False(t, names[p.Name()], "duplicate parameter %s", p.Name())
		names[p.Name()] = true
	}
	for _, want := range []string{
		"embedding_1.embedding_layer.weight",
		"first_block.enc_layer_stack.0.slf_attn.w_qs.weight",
		"second_block.enc_layer_stack.0.pos_ffn.layer_norm.weight",
		"reduce_dim_gamma.bias",
		"weight_combine.weight",
	} {
		assert.True(t, names[want], "missing %s", want)
	}

	stem, err := NewStemGNN(smallConfig("StemGNN"), backend)
	require.NoError(t, err)
	var stemNames []string
	for _, p := range stem.Parameters() {
		stemNames = append(stemNames, p.Name())
	}
	assert.Contains(t, stemNames, "backbone.weight_key")
	assert.Contains(t, stemNames, "output_projection.weight")
}
