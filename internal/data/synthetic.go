package data

import (
	"fmt"
	"math/rand"
)

// RandomWalk generates nSamples standardized random walks of nSteps steps
// and nFeatures features. XOri holds the complete series and X the same
// series with a fraction missingRate of values removed at random.
func RandomWalk(nSamples, nSteps, nFeatures int, missingRate float64, seed int64) (*Dataset, error) {
	if missingRate < 0 || missingRate >= 1 {
		return nil, fmt.Errorf("missing rate must be in [0, 1), got %v", missingRate)
	}
	//nolint:gosec // G404: synthetic data only
	rng := rand.New(rand.NewSource(seed))
	size := nSteps * nFeatures
	walks := make([]float64, nSamples*size)
	for n := 0; n < nSamples; n++ {
		base := n * size
		for t := 1; t < nSteps; t++ {
			for f := 0; f < nFeatures; f++ {
				i := base + t*nFeatures + f
				walks[i] = walks[i-nFeatures] + rng.NormFloat64()
			}
		}
	}

	complete, err := NewDataset(walks, nSamples, nSteps, nFeatures)
	if err != nil {
		return nil, err
	}
	var scaler StandardScaler
	if err := scaler.Fit(complete); err != nil {
		return nil, err
	}
	xOri, err := scaler.Transform(walks)
	if err != nil {
		return nil, err
	}
	return &Dataset{
		X:    MCAR(xOri, missingRate, rng),
		XOri: xOri,
		N:    nSamples, T: nSteps, F: nFeatures,
	}, nil
}

// SplitTrainValTest splits d by sample order: the last testFrac of the
// samples form the test set, the valFrac before them the validation set,
// and the rest the training set. Every part must be non-empty.
func SplitTrainValTest(d *Dataset, valFrac, testFrac float64) (train, val, test *Dataset, err error) {
	nTest := int(float64(d.N) * testFrac)
	nVal := int(float64(d.N) * valFrac)
	nTrain := d.N - nVal - nTest
	if nTest <= 0 || nVal <= 0 || nTrain <= 0 {
		return nil, nil, nil, fmt.Errorf("%w: cannot split %d samples into %d/%d/%d", ErrShape, d.N, nTrain, nVal, nTest)
	}
	return d.Subset(span(0, nTrain)), d.Subset(span(nTrain, nTrain+nVal)), d.Subset(span(nTrain+nVal, d.N)), nil
}

func span(from, to int) []int {
	idx := make([]int, to-from)
	for i := range idx {
		idx[i] = from + i
	}
	return idx
}
