package data

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrNotFitted is returned by a scaler used before Fit.
var ErrNotFitted = errors.New("data: scaler not fitted")

// StandardScaler standardizes every feature to zero mean and unit
// (population) variance. NaN values are ignored when fitting and kept as
// NaN when transforming.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// Fit computes per-feature statistics over all samples and steps of d.
func (s *StandardScaler) Fit(d *Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.Mean = make([]float64, d.F)
	s.Std = make([]float64, d.F)
	column := make([]float64, 0, d.N*d.T)
	for f := 0; f < d.F; f++ {
		column = column[:0]
		for i := f; i < len(d.X); i += d.F {
			if !math.IsNaN(d.X[i]) {
				column = append(column, d.X[i])
			}
		}
		if len(column) == 0 {
			s.Mean[f], s.Std[f] = 0, 1
			continue
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[f], s.Std[f] = mean, std
	}
	return nil
}

// Transform returns (x - mean) / std for values laid out with the fitted
// number of features.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	return s.apply(x, func(v, mean, std float64) float64 { return (v - mean) / std })
}

// InverseTransform undoes Transform.
func (s *StandardScaler) InverseTransform(x []float64) ([]float64, error) {
	return s.apply(x, func(v, mean, std float64) float64 { return v*std + mean })
}

func (s *StandardScaler) apply(x []float64, fn func(v, mean, std float64) float64) ([]float64, error) {
	if s.Mean == nil {
		return nil, ErrNotFitted
	}
	features := len(s.Mean)
	if len(x)%features != 0 {
		return nil, fmt.Errorf("%w: %d values for %d features", ErrShape, len(x), features)
	}
	out := make([]float64, len(x))
	for i, v := range x {
		f := i % features
		out[i] = fn(v, s.Mean[f], s.Std[f])
	}
	return out, nil
}
