package metrics

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Quantiles returns the levels 0.05, 0.10, ..., 0.95 used by the CRPS
// approximation.
func Quantiles() []float64 {
	qs := make([]float64, 19)
	for i := range qs {
		qs[i] = float64(i+1) * 0.05
	}
	return qs
}

// CalcQuantileCRPS approximates the continuous ranked probability score of
// a sampled forecast by averaging normalized quantile losses.
//
// predictions is laid out [batch, samples, rest...] and targets and masks
// [batch, rest...]. For each level q the q-quantile over samples
// (linear interpolation between order statistics) is scored with
//
//	2 * Σ |(f - t) * m * (1{t <= f} - q)| / Σ |t * m|
func CalcQuantileCRPS(predictions, targets, masks []float64, batch, samples int) (float64, error) {
	if err := checkSampled(predictions, targets, masks, batch, samples); err != nil {
		return 0, err
	}
	if masks == nil {
		masks = ones(len(targets))
	}
	return quantileCRPS(predictions, targets, masks, batch, samples), nil
}

// CalcQuantileCRPSSum is CalcQuantileCRPS on the sum over the trailing
// feature axis. Masks are averaged over features.
func CalcQuantileCRPSSum(predictions, targets, masks []float64, batch, samples, features int) (float64, error) {
	if err := checkSampled(predictions, targets, masks, batch, samples); err != nil {
		return 0, err
	}
	if features <= 0 || len(targets)%features != 0 {
		return 0, fmt.Errorf("%w: %d targets not divisible by %d features", ErrShapeMismatch, len(targets), features)
	}
	if masks == nil {
		masks = ones(len(targets))
	}
	return quantileCRPS(
		sumLast(predictions, features),
		sumLast(targets, features),
		meanLast(masks, features),
		batch, samples,
	), nil
}

func checkSampled(predictions, targets, masks []float64, batch, samples int) error {
	if batch <= 0 || samples <= 0 {
		return fmt.Errorf("%w: batch %d, samples %d", ErrShapeMismatch, batch, samples)
	}
	if len(predictions) != len(targets)*samples || len(targets)%batch != 0 {
		return fmt.Errorf("%w: predictions %d, targets %d, batch %d, samples %d",
			ErrShapeMismatch, len(predictions), len(targets), batch, samples)
	}
	if floats.HasNaN(predictions) {
		return fmt.Errorf("%w: predictions", ErrNaN)
	}
	return checkInputs(targets, targets, masks)
}

func quantileCRPS(predictions, targets, masks []float64, batch, samples int) float64 {
	rest := len(targets) / batch
	var denom float64
	for i, t := range targets {
		denom += math.Abs(t * masks[i])
	}

	// Sort the samples of every position once; each level then only
	// interpolates.
	sorted := make([][]float64, len(targets))
	for b := 0; b < batch; b++ {
		for r := 0; r < rest; r++ {
			col := make([]float64, samples)
			for s := 0; s < samples; s++ {
				col[s] = predictions[(b*samples+s)*rest+r]
			}
			slices.Sort(col)
			sorted[b*rest+r] = col
		}
	}

	qs := Quantiles()
	var crps float64
	for _, q := range qs {
		var loss float64
		for i, t := range targets {
			f := interpolate(sorted[i], q)
			indicator := 0.0
			if t <= f {
				indicator = 1
			}
			loss += math.Abs((f - t) * masks[i] * (indicator - q))
		}
		crps += 2 * loss / denom
	}
	return crps / float64(len(qs))
}

// interpolate returns the q-quantile of sorted values with linear
// interpolation between the two nearest ranks.
func interpolate(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func sumLast(values []float64, n int) []float64 {
	out := make([]float64, len(values)/n)
	for i := range out {
		for _, v := range values[i*n : (i+1)*n] {
			out[i] += v
		}
	}
	return out
}

func meanLast(values []float64, n int) []float64 {
	out := sumLast(values, n)
	for i := range out {
		out[i] /= float64(n)
	}
	return out
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
