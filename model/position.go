package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/utexas-bwi/dynamic-tracker/autodiff"
)

// PositionSensor observes the first out components of an in element state.
type PositionSensor struct {
	// in is the state dimension
	in int
	// out is the measurement dimension
	out int
	// r is observation noise covariance
	r *mat.SymDense
}

// NewPositionSensor creates a sensor which measures the first out components
// of an in element state with observation noise covariance r. If r is nil the
// observation noise is zero.
// It returns error if the dimensions are not positive, out exceeds in or
// r dimensions do not match the measurement size.
func NewPositionSensor(in, out int, r mat.Symmetric) (*PositionSensor, error) {
	if in <= 0 || out <= 0 || out > in {
		return nil, fmt.Errorf("invalid sensor dimensions: [%d x %d]", in, out)
	}

	cov := mat.NewSymDense(out, nil)
	if r != nil {
		if r.SymmetricDim() != out {
			return nil, fmt.Errorf("invalid observation noise dimension: %d", r.SymmetricDim())
		}
		cov.CopySym(r)
	}

	return &PositionSensor{
		in:  in,
		out: out,
		r:   cov,
	}, nil
}

// Observe returns the first out components of state x.
func (s *PositionSensor) Observe(x []autodiff.Dual, t float64) []autodiff.Dual {
	y := make([]autodiff.Dual, s.out)
	copy(y, x[:s.out])

	return y
}

// ObservationNoise returns the observation noise covariance.
func (s *PositionSensor) ObservationNoise(x mat.Vector, t float64) mat.Symmetric {
	r := mat.NewSymDense(s.r.SymmetricDim(), nil)
	r.CopySym(s.r)

	return r
}

// Dims returns the sensor input and output dimensions.
func (s *PositionSensor) Dims() (in, out int) {
	return s.in, s.out
}
