// Package erts implements an Extended Rauch-Tung-Striebel smoother.
package erts

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	tracker "github.com/utexas-bwi/dynamic-tracker"
	"github.com/utexas-bwi/dynamic-tracker/autodiff"
	"github.com/utexas-bwi/dynamic-tracker/estimate"
)

// ERTS is an Extended Rauch-Tung-Striebel smoother
type ERTS struct {
	// motion propagates the smoothed state between estimate times
	motion tracker.MotionModel
}

// New creates new ERTS smoother for the given motion model and returns it.
// It returns error if the model is nil or its dimensions are invalid.
func New(motion tracker.MotionModel) (*ERTS, error) {
	if motion == nil {
		return nil, fmt.Errorf("invalid motion model: %v", motion)
	}

	in, out := motion.Dims()
	if in <= 0 || out != in {
		return nil, fmt.Errorf("invalid motion model dimensions: [%d x %d]", in, out)
	}

	return &ERTS{motion: motion}, nil
}

// Smooth runs a backward pass over the filtered estimates est taken at the
// given times and returns the smoothed estimates. The motion model is
// relinearized at every filtered estimate in one dual number evaluation.
// The last smoothed estimate equals the last filtered estimate.
// It returns error if est is empty, the lengths of est and times differ,
// the estimate dimensions do not match the motion model or a predicted
// covariance is singular.
func (s *ERTS) Smooth(est []tracker.Estimate, times []float64) ([]tracker.Estimate, error) {
	if len(est) == 0 {
		return nil, fmt.Errorf("no estimates to smooth")
	}

	if len(est) != len(times) {
		return nil, fmt.Errorf("estimate and time counts differ: %d vs %d", len(est), len(times))
	}

	nx, _ := s.motion.Dims()
	for i := range est {
		if est[i] == nil || est[i].Val().Len() != nx {
			return nil, fmt.Errorf("invalid estimate %d", i)
		}
	}

	sx := make([]tracker.Estimate, len(est))

	// the backward pass is anchored at the last filtered estimate
	last, err := estimate.NewBaseWithCov(est[len(est)-1].Val(), est[len(est)-1].Cov())
	if err != nil {
		return nil, err
	}
	sx[len(est)-1] = last

	xs := &mat.VecDense{}
	xs.CloneFromVec(last.Val())
	ps := mat.NewSymDense(nx, nil)
	ps.CopySym(last.Cov())

	for k := len(est) - 2; k >= 0; k-- {
		dt := times[k+1] - times[k]

		// predict the next state from the filtered estimate and
		// linearize the motion model at it
		xPred, f, err := autodiff.Linearize(tracker.PropagateFunc(s.motion), est[k].Val(), dt)
		if err != nil {
			return nil, fmt.Errorf("state propagation failed: %v", err)
		}

		// F*P*F' + Q
		pPred := &mat.Dense{}
		pPred.Mul(f, est[k].Cov())
		pPred.Mul(pPred, f.T())
		pPred.Add(pPred, s.motion.ProcessNoise(est[k].Val(), times[k+1]))

		pPredInv := &mat.Dense{}
		if err := pPredInv.Inverse(pPred); err != nil {
			return nil, fmt.Errorf("failed to invert predicted covariance: %v", err)
		}

		// C = P*F'*pPred^-1
		c := &mat.Dense{}
		c.Mul(est[k].Cov(), f.T())
		c.Mul(c, pPredInv)

		// x = xf + C*(xs - xPred)
		dx := mat.NewVecDense(nx, nil)
		dx.SubVec(xs, xPred)
		corr := &mat.Dense{}
		corr.Mul(c, dx)
		x := mat.NewVecDense(nx, nil)
		x.AddVec(est[k].Val(), corr.ColView(0))

		// P = Pf + C*(Ps - pPred)*C'
		dp := &mat.Dense{}
		dp.Sub(ps, pPred)
		cp := &mat.Dense{}
		cp.Mul(c, dp)
		cp.Mul(cp, c.T())
		cp.Add(cp, est[k].Cov())

		p := mat.NewSymDense(nx, nil)
		for i := 0; i < nx; i++ {
			for j := i; j < nx; j++ {
				p.SetSym(i, j, cp.At(i, j))
			}
		}

		e, err := estimate.NewBaseWithCov(x, p)
		if err != nil {
			return nil, err
		}
		sx[k] = e

		xs.CloneFromVec(x)
		ps.CopySym(p)
	}

	return sx, nil
}
