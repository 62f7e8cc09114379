package optim

import "math"

// StepLR decays the learning rate of an optimizer by gamma every stepSize
// epochs:
//
//	lr = baseLR * gamma^(epoch / stepSize)
//
// Call Step once at the end of every epoch.
type StepLR struct {
	optimizer Optimizer
	stepSize  int
	gamma     float64
	baseLR    float32
	epoch     int
}

// NewStepLR creates the scheduler. stepSize must be positive.
func NewStepLR(optimizer Optimizer, stepSize int, gamma float64) *StepLR {
	if stepSize <= 0 {
		panic("StepLR: stepSize must be positive")
	}
	return &StepLR{
		optimizer: optimizer,
		stepSize:  stepSize,
		gamma:     gamma,
		baseLR:    optimizer.GetLR(),
	}
}

// Step advances one epoch and updates the optimizer's learning rate.
func (s *StepLR) Step() {
	s.epoch++
	s.optimizer.SetLR(s.LR())
}

// LR returns the learning rate for the current epoch.
func (s *StepLR) LR() float32 {
	return float32(float64(s.baseLR) * math.Pow(s.gamma, float64(s.epoch/s.stepSize)))
}

// Epoch returns the number of completed epochs.
func (s *StepLR) Epoch() int {
	return s.epoch
}
