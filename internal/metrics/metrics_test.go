package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMetrics(t *testing.T) {
	pred := []float64{1, 2, 3}
	target := []float64{1, 1, 1}
	mask := []float64{0, 1, 1}

	tests := []struct {
		name     string
		fn       func(p, t, m []float64) (float64, error)
		mask     []float64
		expected float64
	}{
		{"mae", CalcMAE, nil, 1},
		{"mae masked", CalcMAE, mask, 1.5},
		{"mse", CalcMSE, nil, 5.0 / 3},
		{"mse masked", CalcMSE, mask, 2.5},
		{"rmse masked", CalcRMSE, mask, math.Sqrt(2.5)},
		{"mre", CalcMRE, nil, 1},
		{"mre masked", CalcMRE, mask, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(pred, target, tt.mask)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestEmptyMaskStaysFinite(t *testing.T) {
	got, err := CalcMAE([]float64{1, 2}, []float64{0, 0}, []float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestInputValidation(t *testing.T) {
	_, err := CalcMAE([]float64{1, 2}, []float64{1}, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = CalcMSE([]float64{math.NaN()}, []float64{1}, nil)
	assert.ErrorIs(t, err, ErrNaN)

	_, err = CalcMRE(nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = CalcMAE([]float64{1}, []float64{1}, []float64{1, 1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestQuantiles(t *testing.T) {
	qs := Quantiles()
	require.Len(t, qs, 19)
	assert.InDelta(t, 0.05, qs[0], 1e-12)
	assert.InDelta(t, 0.95, qs[18], 1e-12)
}

func TestInterpolate(t *testing.T) {
	sorted := []float64{0, 1, 2, 3}
	assert.InDelta(t, 1.5, interpolate(sorted, 0.5), 1e-12)
	assert.InDelta(t, 0.15, interpolate(sorted, 0.05), 1e-12)
	assert.Equal(t, 7.0, interpolate([]float64{7}, 0.95))
}

func TestCalcQuantileCRPS(t *testing.T) {
	t.Run("perfect forecast", func(t *testing.T) {
		// batch 1, 3 samples, 2 positions; every sample equals the target.
		pred := []float64{1, 2, 1, 2, 1, 2}
		got, err := CalcQuantileCRPS(pred, []float64{1, 2}, nil, 1, 3)
		require.NoError(t, err)
		assert.InDelta(t, 0, got, 1e-12)
	})

	t.Run("constant overshoot", func(t *testing.T) {
		// f = 3, t = 2: each level scores 2*(1-q)/2, averaging to 1 - mean(q).
		got, err := CalcQuantileCRPS([]float64{3}, []float64{2}, []float64{1}, 1, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, got, 1e-9)
	})

	t.Run("layout", func(t *testing.T) {
		_, err := CalcQuantileCRPS([]float64{1, 2, 3}, []float64{1, 2}, nil, 1, 2)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("nan prediction", func(t *testing.T) {
		_, err := CalcQuantileCRPS([]float64{math.NaN()}, []float64{1}, nil, 1, 1)
		assert.ErrorIs(t, err, ErrNaN)
	})
}

func TestCalcQuantileCRPSSum(t *testing.T) {
	// Feature sums: target 2, forecast 3.
	got, err := CalcQuantileCRPSSum([]float64{2, 1}, []float64{1, 1}, []float64{1, 1}, 1, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-9)

	_, err = CalcQuantileCRPSSum([]float64{2, 1}, []float64{1, 1}, nil, 1, 1, 3)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
