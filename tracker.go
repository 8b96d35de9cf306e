// Package tracker defines the contracts of a dimension-generic state
// tracking toolkit: differentiable motion and observation models, the
// filters that fuse measurements through them and the estimates they
// produce. Models are written once over autodiff scalars and serve both
// plain evaluation and exact linearization through a single code path.
package tracker

import (
	"gonum.org/v1/gonum/mat"

	"github.com/utexas-bwi/dynamic-tracker/autodiff"
)

// MotionModel describes target dynamics. Propagate must be written over
// autodiff scalars only, so the same model body yields both state
// predictions and exact process Jacobians.
type MotionModel interface {
	// Propagate advances state x by the elapsed interval dt
	Propagate(x []autodiff.Dual, dt float64) []autodiff.Dual
	// ProcessNoise returns process noise covariance at state x and time t;
	// a model with no process noise returns a zero covariance
	ProcessNoise(x mat.Vector, t float64) mat.Symmetric
	// Dims returns input and output dimensions of the model
	Dims() (in, out int)
}

// ObservationModel describes a sensor. Observe must be written over
// autodiff scalars only, so the same model body yields both expected
// measurements and exact observation Jacobians.
type ObservationModel interface {
	// Observe maps state x to the expected measurement at time t
	Observe(x []autodiff.Dual, t float64) []autodiff.Dual
	// ObservationNoise returns observation noise covariance at state x and
	// time t; a model with no observation noise returns a zero covariance
	ObservationNoise(x mat.Vector, t float64) mat.Symmetric
	// Dims returns input and output dimensions of the model
	Dims() (in, out int)
}

// Filter is a recursive state tracker driven by timestamped measurements.
type Filter interface {
	// Initialize arms the filter with an initial state, covariance and time
	Initialize(x0 mat.Vector, p0 mat.Symmetric, t0 float64) error
	// Update runs one predict and correct step for measurement z at time t
	Update(z mat.Vector, t float64) (Estimate, error)
	// State returns the current state estimate
	State() mat.Vector
	// Covariance returns the current estimate covariance
	Covariance() mat.Symmetric
	// Time returns the time of the last accepted update
	Time() float64
}

// Smoother re-estimates a recorded track using all of its measurements.
type Smoother interface {
	// Smooth returns smoothed estimates for the filtered track est stamped
	// with times
	Smooth(est []Estimate, times []float64) ([]Estimate, error)
}

// InitCond is an initial condition of a filter.
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is a filter estimate.
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is a source of random state or measurement perturbations.
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}

// PropagateFunc adapts a motion model to the autodiff driver: the first
// extra argument is forwarded as the elapsed interval dt.
func PropagateFunc(m MotionModel) autodiff.Func {
	return func(x []autodiff.Dual, args ...float64) []autodiff.Dual {
		return m.Propagate(x, args[0])
	}
}

// ObserveFunc adapts an observation model to the autodiff driver: the
// first extra argument is forwarded as the absolute time t.
func ObserveFunc(m ObservationModel) autodiff.Func {
	return func(x []autodiff.Dual, args ...float64) []autodiff.Dual {
		return m.Observe(x, args[0])
	}
}
