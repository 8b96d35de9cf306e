// Package ekf implements an Extended Kalman Filter over differentiable
// motion and observation models. The model Jacobians are computed by
// forward mode automatic differentiation, not finite differences, so the
// linearization is exact at every update.
package ekf

import (
	"errors"
	"fmt"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"

	tracker "github.com/utexas-bwi/dynamic-tracker"
	"github.com/utexas-bwi/dynamic-tracker/autodiff"
	"github.com/utexas-bwi/dynamic-tracker/estimate"
)

// ErrNotInitialized is returned when Update is called before Initialize.
var ErrNotInitialized = errors.New("filter not initialized")

// EKF is an Extended Kalman Filter
type EKF struct {
	// motion propagates the state between measurement times
	motion tracker.MotionModel
	// obs maps the state to the measurement space
	obs tracker.ObservationModel
	// nx is the state dimension
	nx int
	// nz is the measurement dimension
	nz int
	// x is the state estimate
	x *mat.VecDense
	// p is the state covariance matrix
	p *mat.SymDense
	// pPred is the predicted state covariance matrix
	pPred *mat.SymDense
	// inn is the innovation vector of the latest update
	inn *mat.VecDense
	// s is the innovation covariance matrix of the latest update
	s *mat.SymDense
	// k is the Kalman gain of the latest update
	k *mat.Dense
	// t is the timestamp of the latest update
	t float64
	// ready reports whether Initialize has been called
	ready bool
}

// New creates a new EKF tracking the state of motion as observed through obs.
// The filter must be initialized with Initialize before its first Update.
// It returns error if either of the following conditions is met:
// - either model is nil
// - the motion model does not map the state onto itself
// - the observation model input dimension does not match the state dimension
func New(motion tracker.MotionModel, obs tracker.ObservationModel) (*EKF, error) {
	nx, nz, err := modelDims(motion, obs)
	if err != nil {
		return nil, err
	}

	return &EKF{
		motion: motion,
		obs:    obs,
		nx:     nx,
		nz:     nz,
		x:      mat.NewVecDense(nx, nil),
		p:      mat.NewSymDense(nx, nil),
		pPred:  mat.NewSymDense(nx, nil),
		inn:    mat.NewVecDense(nz, nil),
		s:      mat.NewSymDense(nz, nil),
		k:      mat.NewDense(nx, nz, nil),
	}, nil
}

// SetModels replaces the filter models.
// The state and measurement dimensions are fixed for the lifetime of the
// filter: it returns error if the new model dimensions differ from the
// dimensions the filter was created with.
func (k *EKF) SetModels(motion tracker.MotionModel, obs tracker.ObservationModel) error {
	nx, nz, err := modelDims(motion, obs)
	if err != nil {
		return err
	}

	if nx != k.nx || nz != k.nz {
		return fmt.Errorf("model dimensions changed: [%d x %d] to [%d x %d]", k.nx, k.nz, nx, nz)
	}

	k.motion = motion
	k.obs = obs

	return nil
}

// Initialize resets the filter to state x0 with covariance p0 at time t0.
// It may be called again at any point to restart the filter.
// It returns error if the dimensions of x0 or p0 do not match the filter.
func (k *EKF) Initialize(x0 mat.Vector, p0 mat.Symmetric, t0 float64) error {
	if x0 == nil || x0.Len() != k.nx {
		return fmt.Errorf("invalid initial state: %v", x0)
	}

	if p0 == nil || p0.SymmetricDim() != k.nx {
		return fmt.Errorf("invalid initial covariance: %v", p0)
	}

	k.x.CloneFromVec(x0)
	k.p.CopySym(p0)
	k.t = t0

	k.pPred = mat.NewSymDense(k.nx, nil)
	k.inn = mat.NewVecDense(k.nz, nil)
	k.s = mat.NewSymDense(k.nz, nil)
	k.k = mat.NewDense(k.nx, k.nz, nil)
	k.ready = true

	return nil
}

// Update fuses the measurement z taken at time t into the state estimate
// and returns the corrected estimate. The state is first propagated from
// the previous update time to t, then corrected with the innovation.
// Out of order timestamps are the caller's responsibility: a negative
// elapsed time propagates the state backwards.
// It returns ErrNotInitialized if the filter has not been initialized and
// error if z dimensions do not match the observation model or if the
// innovation covariance is singular. A failed Update leaves the state
// estimate and the latest update accessors unchanged.
func (k *EKF) Update(z mat.Vector, t float64) (tracker.Estimate, error) {
	if !k.ready {
		return nil, ErrNotInitialized
	}

	if z == nil || z.Len() != k.nz {
		return nil, fmt.Errorf("invalid measurement supplied: %v", z)
	}

	xPred, pPred, err := k.predict(t)
	if err != nil {
		return nil, err
	}

	// correct: predict the measurement and linearize the observation
	// model at the predicted state
	zPred, h, err := autodiff.Linearize(tracker.ObserveFunc(k.obs), xPred, t)
	if err != nil {
		return nil, fmt.Errorf("state observation failed: %v", err)
	}

	// P*H'
	pxy := &mat.Dense{}
	pxy.Mul(pPred, h.T())

	// H*P*H' + R
	pyy := &mat.Dense{}
	pyy.Mul(h, pxy)
	pyy.Add(pyy, k.obs.ObservationNoise(xPred, t))

	pyyInv := &mat.Dense{}
	if err := pyyInv.Inverse(pyy); err != nil {
		return nil, fmt.Errorf("failed to invert innovation covariance: %v", err)
	}

	// K = P*H'*S^-1
	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	inn := mat.NewVecDense(k.nz, nil)
	inn.SubVec(z, zPred)

	// x = xPred + K*inn
	corr := &mat.Dense{}
	corr.Mul(gain, inn)

	// P = (I - K*H)*pPred
	eye, _ := matrix.NewDenseValIdentity(k.nx, 1.0)
	a := &mat.Dense{}
	// K*H
	a.Mul(gain, h)
	a.Sub(eye, a)
	pCorr := &mat.Dense{}
	pCorr.Mul(a, pPred)

	// commit the corrected estimate and the update caches
	k.x.AddVec(xPred, corr.ColView(0))
	setSym(k.p, pCorr)
	k.pPred.CopySym(pPred)
	setSym(k.s, pyy)
	k.inn.CopyVec(inn)
	k.k.Copy(gain)
	k.t = t

	return estimate.NewBaseWithCov(k.x, k.p)
}

// predict propagates the state estimate to time t: it linearizes the motion
// model at the current state in one dual number evaluation and returns the
// predicted state together with its covariance F*P*F' + Q. The prediction
// is not committed to the filter caches; the caller commits it once the
// whole update has succeeded.
func (k *EKF) predict(t float64) (mat.Vector, *mat.SymDense, error) {
	dt := t - k.t

	xPred, f, err := autodiff.Linearize(tracker.PropagateFunc(k.motion), k.x, dt)
	if err != nil {
		return nil, nil, fmt.Errorf("state propagation failed: %v", err)
	}

	// F*P*F' + Q
	cov := &mat.Dense{}
	cov.Mul(f, k.p)
	cov.Mul(cov, f.T())
	cov.Add(cov, k.motion.ProcessNoise(k.x, t))

	pPred := mat.NewSymDense(k.nx, nil)
	setSym(pPred, cov)

	return xPred, pPred, nil
}

// State returns the state estimate.
func (k *EKF) State() mat.Vector {
	x := &mat.VecDense{}
	x.CloneFromVec(k.x)

	return x
}

// Covariance returns the state covariance.
func (k *EKF) Covariance() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// PredCovariance returns the predicted state covariance of the latest update.
func (k *EKF) PredCovariance() mat.Symmetric {
	cov := mat.NewSymDense(k.pPred.SymmetricDim(), nil)
	cov.CopySym(k.pPred)

	return cov
}

// Time returns the timestamp of the latest update.
func (k *EKF) Time() float64 {
	return k.t
}

// Gain returns the Kalman gain of the latest update.
func (k *EKF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}

// Innovation returns the innovation vector of the latest update.
func (k *EKF) Innovation() mat.Vector {
	inn := &mat.VecDense{}
	inn.CloneFromVec(k.inn)

	return inn
}

// InnovationCov returns the innovation covariance of the latest update.
func (k *EKF) InnovationCov() mat.Symmetric {
	cov := mat.NewSymDense(k.s.SymmetricDim(), nil)
	cov.CopySym(k.s)

	return cov
}

// modelDims validates the models and returns the state and measurement dimensions.
func modelDims(motion tracker.MotionModel, obs tracker.ObservationModel) (nx, nz int, err error) {
	if motion == nil || obs == nil {
		return 0, 0, fmt.Errorf("invalid models: motion %v, obs %v", motion, obs)
	}

	nx, out := motion.Dims()
	if nx <= 0 || out != nx {
		return 0, 0, fmt.Errorf("invalid motion model dimensions: [%d x %d]", nx, out)
	}

	in, nz := obs.Dims()
	if nz <= 0 || in != nx {
		return 0, 0, fmt.Errorf("invalid observation model dimensions: [%d x %d]", in, nz)
	}

	return nx, nz, nil
}

// setSym copies the upper triangle of m into dst.
func setSym(dst *mat.SymDense, m mat.Matrix) {
	n := dst.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, m.At(i, j))
		}
	}
}
