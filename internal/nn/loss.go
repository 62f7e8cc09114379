package nn

import (
	"errors"
	"fmt"

	"github.com/gopots/gopots/internal/metrics"
	"github.com/gopots/gopots/internal/tensor"
)

// maskEps keeps masked averages finite when a mask is all zeros.
const maskEps = 1e-12

var (
	// ErrNotImplemented is returned by criteria without a forward pass.
	ErrNotImplemented = errors.New("nn: not implemented")
	// ErrShapeMismatch is returned when prediction, target and mask disagree.
	ErrShapeMismatch = metrics.ErrShapeMismatch
	// ErrNaN is returned when an input contains NaN.
	ErrNaN = metrics.ErrNaN
)

// Criterion scores a prediction against a target. The mask selects which
// positions count (1) and which do not (0); a nil mask counts everything.
//
// Criteria built from tensor ops are differentiable when run on an
// autodiff backend with a recording tape.
type Criterion[B tensor.Backend] interface {
	Forward(prediction, target, mask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error)
	Name() string
}

// BaseCriterion carries a criterion name and has no forward pass of its
// own. Criteria embed it for Name.
type BaseCriterion[B tensor.Backend] struct {
	name string
}

// NewBaseCriterion creates a named base criterion.
func NewBaseCriterion[B tensor.Backend](name string) BaseCriterion[B] {
	return BaseCriterion[B]{name: name}
}

// Forward always returns ErrNotImplemented.
func (c BaseCriterion[B]) Forward(_, _, _ *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	return nil, fmt.Errorf("%s.Forward: %w", c.name, ErrNotImplemented)
}

// Name returns the criterion name.
func (c BaseCriterion[B]) Name() string {
	return c.name
}

// MAE is the (masked) mean absolute error.
type MAE[B tensor.Backend] struct{ BaseCriterion[B] }

// NewMAE creates the criterion.
func NewMAE[B tensor.Backend]() *MAE[B] {
	return &MAE[B]{NewBaseCriterion[B]("MAE")}
}

// Forward returns Σ|p - t|·m / (Σm + ε), or mean |p - t| without a mask.
func (c *MAE[B]) Forward(prediction, target, mask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	if err := checkInputs(prediction, target, mask); err != nil {
		return nil, fmt.Errorf("MAE: %w", err)
	}
	return maskedMean(prediction.Sub(target).Abs(), mask), nil
}

// MSE is the (masked) mean squared error.
type MSE[B tensor.Backend] struct{ BaseCriterion[B] }

// NewMSE creates the criterion.
func NewMSE[B tensor.Backend]() *MSE[B] {
	return &MSE[B]{NewBaseCriterion[B]("MSE")}
}

// Forward returns Σ(p - t)²·m / (Σm + ε), or mean (p - t)² without a mask.
func (c *MSE[B]) Forward(prediction, target, mask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	if err := checkInputs(prediction, target, mask); err != nil {
		return nil, fmt.Errorf("MSE: %w", err)
	}
	return maskedMean(prediction.Sub(target).Square(), mask), nil
}

// RMSE is the square root of MSE.
type RMSE[B tensor.Backend] struct{ BaseCriterion[B] }

// NewRMSE creates the criterion.
func NewRMSE[B tensor.Backend]() *RMSE[B] {
	return &RMSE[B]{NewBaseCriterion[B]("RMSE")}
}

// Forward returns sqrt(MSE).
func (c *RMSE[B]) Forward(prediction, target, mask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	if err := checkInputs(prediction, target, mask); err != nil {
		return nil, fmt.Errorf("RMSE: %w", err)
	}
	return maskedMean(prediction.Sub(target).Square(), mask).Sqrt(), nil
}

// MRE is the mean relative error.
type MRE[B tensor.Backend] struct{ BaseCriterion[B] }

// NewMRE creates the criterion.
func NewMRE[B tensor.Backend]() *MRE[B] {
	return &MRE[B]{NewBaseCriterion[B]("MRE")}
}

// Forward returns Σ|p - t|·m / (Σ|t·m| + ε).
func (c *MRE[B]) Forward(prediction, target, mask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	if err := checkInputs(prediction, target, mask); err != nil {
		return nil, fmt.Errorf("MRE: %w", err)
	}
	errs := prediction.Sub(target).Abs()
	scale := target.Abs()
	if mask != nil {
		errs = errs.Mul(mask)
		scale = target.Mul(mask).Abs()
	}
	return errs.Sum().Div(scale.Sum().AddScalar(maskEps)), nil
}

// QuantileCRPS scores a sampled forecast [B, S, ...] against target
// [B, ...] with the quantile approximation of the CRPS. The result is a
// constant: no gradient flows through the sorting of samples.
type QuantileCRPS[B tensor.Backend] struct{ BaseCriterion[B] }

// NewQuantileCRPS creates the criterion.
func NewQuantileCRPS[B tensor.Backend]() *QuantileCRPS[B] {
	return &QuantileCRPS[B]{NewBaseCriterion[B]("QuantileCRPS")}
}

// Forward computes the score; see metrics.CalcQuantileCRPS.
func (c *QuantileCRPS[B]) Forward(prediction, target, mask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	batch, samples, err := sampledDims(prediction, target)
	if err != nil {
		return nil, fmt.Errorf("QuantileCRPS: %w", err)
	}
	v, err := metrics.CalcQuantileCRPS(prediction.Raw().Float64s(), target.Raw().Float64s(), maskValues(mask), batch, samples)
	if err != nil {
		return nil, fmt.Errorf("QuantileCRPS: %w", err)
	}
	return tensor.Scalar(float32(v), prediction.Backend()), nil
}

// QuantileCRPSSum is QuantileCRPS over the sum of the trailing feature axis.
type QuantileCRPSSum[B tensor.Backend] struct{ BaseCriterion[B] }

// NewQuantileCRPSSum creates the criterion.
func NewQuantileCRPSSum[B tensor.Backend]() *QuantileCRPSSum[B] {
	return &QuantileCRPSSum[B]{NewBaseCriterion[B]("QuantileCRPSSum")}
}

// Forward computes the score; see metrics.CalcQuantileCRPSSum.
func (c *QuantileCRPSSum[B]) Forward(prediction, target, mask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	batch, samples, err := sampledDims(prediction, target)
	if err != nil {
		return nil, fmt.Errorf("QuantileCRPSSum: %w", err)
	}
	v, err := metrics.CalcQuantileCRPSSum(prediction.Raw().Float64s(), target.Raw().Float64s(), maskValues(mask),
		batch, samples, target.Dim(-1))
	if err != nil {
		return nil, fmt.Errorf("QuantileCRPSSum: %w", err)
	}
	return tensor.Scalar(float32(v), prediction.Backend()), nil
}

// CrossEntropy is the mean negative log-likelihood of class targets under
// logits [N, C]. Targets hold class ids [N] as floats; the mask is unused.
type CrossEntropy[B tensor.Backend] struct{ BaseCriterion[B] }

// NewCrossEntropy creates the criterion.
func NewCrossEntropy[B tensor.Backend]() *CrossEntropy[B] {
	return &CrossEntropy[B]{NewBaseCriterion[B]("CrossEntropy")}
}

// Forward computes the loss.
func (c *CrossEntropy[B]) Forward(prediction, target, _ *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	if prediction.Rank() != 2 || target.Rank() != 1 || prediction.Dim(0) != target.Dim(0) {
		return nil, fmt.Errorf("CrossEntropy: %w: logits %v, targets %v", ErrShapeMismatch, prediction.Shape(), target.Shape())
	}
	if prediction.HasNaN() || target.HasNaN() {
		return nil, fmt.Errorf("CrossEntropy: %w", ErrNaN)
	}
	classes := prediction.Dim(1)
	for _, id := range target.Data() {
		if id < 0 || int(id) >= classes || float32(int(id)) != id {
			return nil, fmt.Errorf("CrossEntropy: invalid class id %v for %d classes", id, classes)
		}
	}
	return tensor.CrossEntropy(prediction, tensor.Cast[int32](target)), nil
}

// CriterionByName returns the criterion registered under name
// ("MAE", "MSE", "RMSE", "MRE", "QuantileCRPS", "QuantileCRPSSum",
// "CrossEntropy").
func CriterionByName[B tensor.Backend](name string) (Criterion[B], error) {
	switch name {
	case "MAE":
		return NewMAE[B](), nil
	case "MSE":
		return NewMSE[B](), nil
	case "RMSE":
		return NewRMSE[B](), nil
	case "MRE":
		return NewMRE[B](), nil
	case "QuantileCRPS":
		return NewQuantileCRPS[B](), nil
	case "QuantileCRPSSum":
		return NewQuantileCRPSSum[B](), nil
	case "CrossEntropy":
		return NewCrossEntropy[B](), nil
	default:
		return nil, fmt.Errorf("unknown criterion %q", name)
	}
}

func checkInputs[B tensor.Backend](prediction, target, mask *tensor.Tensor[float32, B]) error {
	if !prediction.Shape().Equal(target.Shape()) {
		return fmt.Errorf("%w: prediction %v, target %v", ErrShapeMismatch, prediction.Shape(), target.Shape())
	}
	if mask != nil && !mask.Shape().Equal(target.Shape()) {
		return fmt.Errorf("%w: target %v, mask %v", ErrShapeMismatch, target.Shape(), mask.Shape())
	}
	if prediction.HasNaN() {
		return fmt.Errorf("%w: prediction", ErrNaN)
	}
	if target.HasNaN() {
		return fmt.Errorf("%w: target", ErrNaN)
	}
	return nil
}

func maskedMean[B tensor.Backend](values, mask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if mask == nil {
		return values.Mean()
	}
	return values.Mul(mask).Sum().Div(mask.Sum().AddScalar(maskEps))
}

func sampledDims[B tensor.Backend](prediction, target *tensor.Tensor[float32, B]) (batch, samples int, err error) {
	if prediction.Rank() != target.Rank()+1 || prediction.Rank() < 2 || prediction.Dim(0) != target.Dim(0) {
		return 0, 0, fmt.Errorf("%w: prediction %v, target %v", ErrShapeMismatch, prediction.Shape(), target.Shape())
	}
	return prediction.Dim(0), prediction.Dim(1), nil
}

func maskValues[B tensor.Backend](mask *tensor.Tensor[float32, B]) []float64 {
	if mask == nil {
		return nil
	}
	return mask.Raw().Float64s()
}
