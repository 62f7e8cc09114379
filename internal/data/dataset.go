// Package data holds in-memory time-series datasets and their preparation
// for training and imputation.
//
// Values are stored flat in [sample, step, feature] order as float64 with
// NaN marking a missing observation.
package data

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrShape is returned when a dataset's dimensions do not match its values.
var ErrShape = errors.New("data: shape mismatch")

// Dataset is a batch of N multivariate series of T steps and F features.
type Dataset struct {
	// X holds the observed values; NaN is missing.
	X []float64
	// XOri optionally holds the values before artificial masking, used to
	// score imputations. NaN where the value was never observed.
	XOri []float64

	N, T, F int
}

// NewDataset wraps x as an [n, t, f] dataset without ground truth.
func NewDataset(x []float64, n, t, f int) (*Dataset, error) {
	d := &Dataset{X: x, N: n, T: t, F: f}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the dimensions against the value slices.
func (d *Dataset) Validate() error {
	if d.N <= 0 || d.T <= 0 || d.F <= 0 {
		return fmt.Errorf("%w: dimensions [%d, %d, %d] must be positive", ErrShape, d.N, d.T, d.F)
	}
	if len(d.X) != d.N*d.T*d.F {
		return fmt.Errorf("%w: X has %d values, want %d", ErrShape, len(d.X), d.N*d.T*d.F)
	}
	if d.XOri != nil && len(d.XOri) != len(d.X) {
		return fmt.Errorf("%w: XOri has %d values, want %d", ErrShape, len(d.XOri), len(d.X))
	}
	return nil
}

// SampleSize is the number of values in one sample (T*F).
func (d *Dataset) SampleSize() int {
	return d.T * d.F
}

// Subset returns a dataset with the samples at idx, in order. Values are
// copied.
func (d *Dataset) Subset(idx []int) *Dataset {
	size := d.SampleSize()
	out := &Dataset{X: make([]float64, 0, len(idx)*size), N: len(idx), T: d.T, F: d.F}
	if d.XOri != nil {
		out.XOri = make([]float64, 0, len(idx)*size)
	}
	for _, i := range idx {
		out.X = append(out.X, d.X[i*size:(i+1)*size]...)
		if d.XOri != nil {
			out.XOri = append(out.XOri, d.XOri[i*size:(i+1)*size]...)
		}
	}
	return out
}

// MissingRate returns the fraction of NaN values in X.
func (d *Dataset) MissingRate() float64 {
	missing := 0
	for _, v := range d.X {
		if math.IsNaN(v) {
			missing++
		}
	}
	return float64(missing) / float64(len(d.X))
}

// MCAR returns a copy of x in which each observed value is replaced by NaN
// with probability rate (missing completely at random).
func MCAR(x []float64, rate float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if !math.IsNaN(v) && rng.Float64() < rate {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// Prepared is a dataset in model-ready form: NaN replaced by zero plus the
// masks the models and losses consume. All slices are [N*T*F].
type Prepared struct {
	X    []float32 // observed values, 0 where missing
	XOri []float32 // ground truth, 0 where unknown; nil without ground truth
	// MissingMask is 1 where X is observed.
	MissingMask []float32
	// IndicatingMask is 1 where XOri is observed but X is not: the values
	// hidden for the masked imputation task.
	IndicatingMask []float32

	N, T, F int
}

// NewMITDataset prepares d for training with the masked imputation task.
// The observed values of d.X are the ground truth and a fresh MCAR mask
// with the given rate hides part of them; d.XOri is ignored, since values
// missing from X must never become training targets. Call it once per
// epoch to draw a new mask.
func NewMITDataset(d *Dataset, rate float64, rng *rand.Rand) (*Prepared, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return prepare(MCAR(d.X, rate, rng), d.X, d.N, d.T, d.F), nil
}

// NewEvalDataset prepares d for imputation or validation without further
// masking. XOri and IndicatingMask are set only when d has ground truth.
func NewEvalDataset(d *Dataset) (*Prepared, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return prepare(d.X, d.XOri, d.N, d.T, d.F), nil
}

func prepare(x, xOri []float64, n, t, f int) *Prepared {
	p := &Prepared{
		X:           make([]float32, len(x)),
		MissingMask: make([]float32, len(x)),
		N:           n, T: t, F: f,
	}
	for i, v := range x {
		if !math.IsNaN(v) {
			p.X[i] = float32(v)
			p.MissingMask[i] = 1
		}
	}
	if xOri == nil {
		return p
	}
	p.XOri = make([]float32, len(xOri))
	p.IndicatingMask = make([]float32, len(xOri))
	for i, v := range xOri {
		if math.IsNaN(v) {
			continue
		}
		p.XOri[i] = float32(v)
		if p.MissingMask[i] == 0 {
			p.IndicatingMask[i] = 1
		}
	}
	return p
}

// HasGroundTruth reports whether XOri and IndicatingMask are available.
func (p *Prepared) HasGroundTruth() bool {
	return p.XOri != nil
}
