package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/utexas-bwi/dynamic-tracker/autodiff"
)

// omegaEps is the turn rate below which the transition switches to its
// Taylor expansion to avoid dividing by a vanishing omega.
const omegaEps = 1e-9

// CoordinatedTurn is a planar coordinated turn motion model.
// Its state vector is [x, y, v_x, v_y, omega] where omega is the
// constant turn rate in rad/s.
type CoordinatedTurn struct {
	// q is process noise covariance
	q *mat.SymDense
}

// NewCoordinatedTurn creates a coordinated turn model with process noise
// covariance q. If q is nil the process noise is zero.
// It returns error if q dimensions do not match the 5 element state.
func NewCoordinatedTurn(q mat.Symmetric) (*CoordinatedTurn, error) {
	cov := mat.NewSymDense(5, nil)
	if q != nil {
		if q.SymmetricDim() != 5 {
			return nil, fmt.Errorf("invalid process noise dimension: %d", q.SymmetricDim())
		}
		cov.CopySym(q)
	}

	return &CoordinatedTurn{q: cov}, nil
}

// Propagate turns the velocity vector by omega*dt and advances the position
// along the turning arc. The turn rate itself stays constant.
func (c *CoordinatedTurn) Propagate(x []autodiff.Dual, dt float64) []autodiff.Dual {
	w := x[4]
	wt := w.Scale(dt)
	sin := wt.Sin()
	cos := wt.Cos()

	// sw = sin(w*dt)/w, cw = (1-cos(w*dt))/w
	var sw, cw autodiff.Dual
	if math.Abs(w.Real) < omegaEps {
		// Taylor expansion about w=0 keeps the value and the
		// derivative w.r.t. omega finite
		sw = w.Mul(w).Scale(-dt * dt * dt / 6).Shift(dt)
		cw = w.Scale(dt * dt / 2)
	} else {
		sw = sin.Div(w)
		cw = cos.Neg().Shift(1).Div(w)
	}

	next := make([]autodiff.Dual, 5)
	next[0] = x[0].Add(sw.Mul(x[2])).Sub(cw.Mul(x[3]))
	next[1] = x[1].Add(cw.Mul(x[2])).Add(sw.Mul(x[3]))
	next[2] = cos.Mul(x[2]).Sub(sin.Mul(x[3]))
	next[3] = sin.Mul(x[2]).Add(cos.Mul(x[3]))
	next[4] = w

	return next
}

// ProcessNoise returns the process noise covariance.
func (c *CoordinatedTurn) ProcessNoise(x mat.Vector, t float64) mat.Symmetric {
	q := mat.NewSymDense(c.q.SymmetricDim(), nil)
	q.CopySym(c.q)

	return q
}

// Dims returns the model input and output dimensions.
func (c *CoordinatedTurn) Dims() (in, out int) {
	return 5, 5
}
