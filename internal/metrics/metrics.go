// Package metrics scores imputations on plain float64 slices.
//
// Every function takes predictions, targets and an optional mask of the same
// length. With a mask, only positions where the mask is non-zero count:
//
//	mae := metrics.CalcMAE(imputed, xOri, indicatingMask)
//
// Inputs must not contain NaN; fill missing targets with zero and exclude
// them through the mask.
package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// eps keeps masked averages finite when the mask is empty.
const eps = 1e-12

var (
	// ErrShapeMismatch is returned when inputs have incompatible lengths.
	ErrShapeMismatch = errors.New("metrics: shape mismatch")
	// ErrNaN is returned when an input contains NaN.
	ErrNaN = errors.New("metrics: input contains NaN")
	// ErrEmpty is returned for zero-length inputs.
	ErrEmpty = errors.New("metrics: empty input")
)

func checkInputs(predictions, targets, masks []float64) error {
	if len(predictions) == 0 {
		return ErrEmpty
	}
	if len(predictions) != len(targets) {
		return fmt.Errorf("%w: predictions %d, targets %d", ErrShapeMismatch, len(predictions), len(targets))
	}
	if masks != nil && len(masks) != len(targets) {
		return fmt.Errorf("%w: targets %d, masks %d", ErrShapeMismatch, len(targets), len(masks))
	}
	if floats.HasNaN(predictions) {
		return fmt.Errorf("%w: predictions", ErrNaN)
	}
	if floats.HasNaN(targets) {
		return fmt.Errorf("%w: targets", ErrNaN)
	}
	if masks != nil && floats.HasNaN(masks) {
		return fmt.Errorf("%w: masks", ErrNaN)
	}
	return nil
}

// CalcMAE returns the mean absolute error.
func CalcMAE(predictions, targets, masks []float64) (float64, error) {
	if err := checkInputs(predictions, targets, masks); err != nil {
		return 0, err
	}
	diff := make([]float64, len(predictions))
	floats.SubTo(diff, predictions, targets)
	for i, d := range diff {
		diff[i] = math.Abs(d)
	}
	return maskedMean(diff, masks), nil
}

// CalcMSE returns the mean squared error.
func CalcMSE(predictions, targets, masks []float64) (float64, error) {
	if err := checkInputs(predictions, targets, masks); err != nil {
		return 0, err
	}
	diff := make([]float64, len(predictions))
	floats.SubTo(diff, predictions, targets)
	floats.Mul(diff, diff)
	return maskedMean(diff, masks), nil
}

// CalcRMSE returns the square root of CalcMSE.
func CalcRMSE(predictions, targets, masks []float64) (float64, error) {
	mse, err := CalcMSE(predictions, targets, masks)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// CalcMRE returns the mean relative error: the absolute error summed over
// counted positions divided by the summed absolute targets.
func CalcMRE(predictions, targets, masks []float64) (float64, error) {
	if err := checkInputs(predictions, targets, masks); err != nil {
		return 0, err
	}
	var num, den float64
	for i, p := range predictions {
		m := 1.0
		if masks != nil {
			m = masks[i]
		}
		num += math.Abs(p-targets[i]) * m
		den += math.Abs(targets[i] * m)
	}
	return num / (den + eps), nil
}

func maskedMean(values, masks []float64) float64 {
	if masks == nil {
		return stat.Mean(values, nil)
	}
	return floats.Dot(values, masks) / (floats.Sum(masks) + eps)
}
