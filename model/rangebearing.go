package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/utexas-bwi/dynamic-tracker/autodiff"
)

// RangeBearingSensor measures range and bearing to the tracked object from
// a fixed sensor origin. The first two state components are the object
// position in the sensor plane.
type RangeBearingSensor struct {
	// in is the state dimension
	in int
	// ox, oy is the sensor origin
	ox, oy float64
	// r is observation noise covariance
	r *mat.SymDense
}

// NewRangeBearing creates a range and bearing sensor at origin (ox, oy)
// observing an in element state with observation noise covariance r.
// If r is nil the observation noise is zero.
// It returns error if in is smaller than 2 or r is not a 2x2 covariance.
func NewRangeBearing(in int, ox, oy float64, r mat.Symmetric) (*RangeBearingSensor, error) {
	if in < 2 {
		return nil, fmt.Errorf("invalid state dimension: %d", in)
	}

	cov := mat.NewSymDense(2, nil)
	if r != nil {
		if r.SymmetricDim() != 2 {
			return nil, fmt.Errorf("invalid observation noise dimension: %d", r.SymmetricDim())
		}
		cov.CopySym(r)
	}

	return &RangeBearingSensor{
		in: in,
		ox: ox,
		oy: oy,
		r:  cov,
	}, nil
}

// Observe returns [range, bearing] of state x relative to the sensor origin.
func (s *RangeBearingSensor) Observe(x []autodiff.Dual, t float64) []autodiff.Dual {
	dx := x[0].Shift(-s.ox)
	dy := x[1].Shift(-s.oy)

	y := make([]autodiff.Dual, 2)
	y[0] = dx.Hypot(dy)
	y[1] = dy.Atan2(dx)

	return y
}

// ObservationNoise returns the observation noise covariance.
func (s *RangeBearingSensor) ObservationNoise(x mat.Vector, t float64) mat.Symmetric {
	r := mat.NewSymDense(s.r.SymmetricDim(), nil)
	r.CopySym(s.r)

	return r
}

// Dims returns the sensor input and output dimensions.
func (s *RangeBearingSensor) Dims() (in, out int) {
	return s.in, 2
}
