package ekf

import (
	"fmt"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"

	tracker "github.com/utexas-bwi/dynamic-tracker"
	"github.com/utexas-bwi/dynamic-tracker/autodiff"
	"github.com/utexas-bwi/dynamic-tracker/estimate"
)

// IEKF is an Iterated Extended Kalman Filter
type IEKF struct {
	// EKF is the underlying extended Kalman filter
	*EKF
	// n is the number of update iterations
	n int
}

// NewIter creates a new Iterated EKF which relinearizes the observation
// model n times per update, each time about the refreshed state estimate.
// With n = 1 it behaves exactly like the plain EKF; larger n improves the
// correction of strongly nonlinear observation models.
// It returns error if either of the following conditions is met:
// - either model is invalid (see New)
// - n is not positive
func NewIter(motion tracker.MotionModel, obs tracker.ObservationModel, n int) (*IEKF, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of update iterations: %d", n)
	}

	f, err := New(motion, obs)
	if err != nil {
		return nil, err
	}

	return &IEKF{
		EKF: f,
		n:   n,
	}, nil
}

// Update fuses the measurement z taken at time t into the state estimate
// and returns the corrected estimate. The correction is iterated: each pass
// relinearizes the observation model about the latest state iterate and
// recomputes the Kalman gain from it.
// It returns ErrNotInitialized if the filter has not been initialized and
// error if z dimensions do not match the observation model or if the
// innovation covariance is singular. A failed Update leaves the state
// estimate and the latest update accessors unchanged.
func (k *IEKF) Update(z mat.Vector, t float64) (tracker.Estimate, error) {
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

	xi := &mat.VecDense{}
	xi.CloneFromVec(xPred)

	var h *mat.Dense
	gain := &mat.Dense{}
	pyy := &mat.Dense{}
	resid := mat.NewVecDense(k.nz, nil)

	for i := 0; i < k.n; i++ {
		zi, hi, err := autodiff.Linearize(tracker.ObserveFunc(k.obs), xi, t)
		if err != nil {
			return nil, fmt.Errorf("state observation failed: %v", err)
		}
		h = hi

		// P*H'
		pxy := &mat.Dense{}
		pxy.Mul(pPred, h.T())

		// H*P*H' + R
		pyy.Mul(h, pxy)
		pyy.Add(pyy, k.obs.ObservationNoise(xi, t))

		pyyInv := &mat.Dense{}
		if err := pyyInv.Inverse(pyy); err != nil {
			return nil, fmt.Errorf("failed to invert innovation covariance: %v", err)
		}

		// K = P*H'*S^-1
		gain.Mul(pxy, pyyInv)

		// resid = z - zi - H*(xPred - xi)
		resid.SubVec(z, zi)
		dx := mat.NewVecDense(k.nx, nil)
		dx.SubVec(xPred, xi)
		hdx := &mat.Dense{}
		hdx.Mul(h, dx)
		resid.SubVec(resid, hdx.ColView(0))

		// xi = xPred + K*resid
		corr := &mat.Dense{}
		corr.Mul(gain, resid)
		xi.AddVec(xPred, corr.ColView(0))
	}

	// P = (I - K*H)*pPred with the final iteration linearization
	eye, _ := matrix.NewDenseValIdentity(k.nx, 1.0)
	a := &mat.Dense{}
	// K*H
	a.Mul(gain, h)
	a.Sub(eye, a)
	pCorr := &mat.Dense{}
	pCorr.Mul(a, pPred)

	// commit the corrected estimate and the update caches
	k.x.CopyVec(xi)
	setSym(k.p, pCorr)
	k.pPred.CopySym(pPred)
	setSym(k.s, pyy)
	k.inn.CopyVec(resid)
	k.k.Copy(gain)
	k.t = t

	return estimate.NewBaseWithCov(k.x, k.p)
}
