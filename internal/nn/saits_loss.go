package nn

import (
	"errors"
	"fmt"

	"github.com/gopots/gopots/internal/tensor"
)

// SaitsLoss combines the observed reconstruction task (ORT), scored where
// values were observed, with the masked imputation task (MIT), scored where
// observed values were artificially hidden:
//
//	ORT  = ortWeight * criterion(recon, X, missingMask)
//	MIT  = mitWeight * criterion(recon, X_ori, indicatingMask)
//	loss = ORT + MIT
type SaitsLoss[B tensor.Backend] struct {
	ortWeight float64
	mitWeight float64
	criterion Criterion[B]
}

// NewSaitsLoss creates the loss; a nil criterion defaults to MAE.
func NewSaitsLoss[B tensor.Backend](ortWeight, mitWeight float64, criterion Criterion[B]) *SaitsLoss[B] {
	if criterion == nil {
		criterion = NewMAE[B]()
	}
	return &SaitsLoss[B]{ortWeight: ortWeight, mitWeight: mitWeight, criterion: criterion}
}

// Forward scores a single reconstruction and returns (loss, ORT, MIT).
func (l *SaitsLoss[B]) Forward(
	reconstruction, xOri, missingMask, indicatingMask *tensor.Tensor[float32, B],
) (loss, ort, mit *tensor.Tensor[float32, B], err error) {
	ort, err = l.ForwardORT([]*tensor.Tensor[float32, B]{reconstruction}, xOri, missingMask)
	if err != nil {
		return nil, nil, nil, err
	}
	mit, err = l.ForwardMIT(reconstruction, xOri, indicatingMask)
	if err != nil {
		return nil, nil, nil, err
	}
	return ort.Add(mit), ort, mit, nil
}

// ForwardORT averages the criterion over several reconstructions of the
// observed values and applies the ORT weight.
func (l *SaitsLoss[B]) ForwardORT(
	reconstructions []*tensor.Tensor[float32, B], x, missingMask *tensor.Tensor[float32, B],
) (*tensor.Tensor[float32, B], error) {
	if len(reconstructions) == 0 {
		return nil, errors.New("SaitsLoss: no reconstructions")
	}
	var sum *tensor.Tensor[float32, B]
	for _, r := range reconstructions {
		v, err := l.criterion.Forward(r, x, missingMask)
		if err != nil {
			return nil, fmt.Errorf("SaitsLoss ORT: %w", err)
		}
		if sum == nil {
			sum = v
		} else {
			sum = sum.Add(v)
		}
	}
	return sum.MulScalar(l.ortWeight / float64(len(reconstructions))), nil
}

// ForwardMIT scores the final imputation on the artificially hidden values.
func (l *SaitsLoss[B]) ForwardMIT(reconstruction, xOri, indicatingMask *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	v, err := l.criterion.Forward(reconstruction, xOri, indicatingMask)
	if err != nil {
		return nil, fmt.Errorf("SaitsLoss MIT: %w", err)
	}
	return v.MulScalar(l.mitWeight), nil
}

// Criterion returns the wrapped criterion.
func (l *SaitsLoss[B]) Criterion() Criterion[B] {
	return l.criterion
}
