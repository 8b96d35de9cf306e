// Package model provides differentiable motion and observation models.
//
// The models implement the tracker interfaces: they propagate and observe
// dual number states so a single model definition serves both plain
// evaluation and linearization.
package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/utexas-bwi/dynamic-tracker/autodiff"
)

// ConstantVelocity is a constant velocity motion model.
// Its state vector is [p_1, ..., p_d, v_1, ..., v_d]: positions
// followed by velocities along d spatial dimensions.
type ConstantVelocity struct {
	// dims is the number of spatial dimensions
	dims int
	// q is process noise covariance
	q *mat.SymDense
}

// NewConstantVelocity creates a constant velocity model over dims spatial dimensions
// with process noise covariance q. If q is nil the process noise is zero.
// It returns error if dims is not positive or if q dimensions do not match the state size.
func NewConstantVelocity(dims int, q mat.Symmetric) (*ConstantVelocity, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid number of spatial dimensions: %d", dims)
	}

	nx := 2 * dims
	cov := mat.NewSymDense(nx, nil)
	if q != nil {
		if q.SymmetricDim() != nx {
			return nil, fmt.Errorf("invalid process noise dimension: %d", q.SymmetricDim())
		}
		cov.CopySym(q)
	}

	return &ConstantVelocity{
		dims: dims,
		q:    cov,
	}, nil
}

// Propagate moves the state forward by dt: positions advance along the
// velocities, velocities stay constant.
func (c *ConstantVelocity) Propagate(x []autodiff.Dual, dt float64) []autodiff.Dual {
	next := make([]autodiff.Dual, len(x))
	for i := 0; i < c.dims; i++ {
		// p += dt*v
		next[i] = x[i].Add(x[c.dims+i].Scale(dt))
		next[c.dims+i] = x[c.dims+i]
	}

	return next
}

// ProcessNoise returns the process noise covariance.
func (c *ConstantVelocity) ProcessNoise(x mat.Vector, t float64) mat.Symmetric {
	q := mat.NewSymDense(c.q.SymmetricDim(), nil)
	q.CopySym(c.q)

	return q
}

// Dims returns the model input and output dimensions.
func (c *ConstantVelocity) Dims() (in, out int) {
	return 2 * c.dims, 2 * c.dims
}

// Position returns the position components of state x.
func (c *ConstantVelocity) Position(x mat.Vector) mat.Vector {
	pos := mat.NewVecDense(c.dims, nil)
	for i := 0; i < c.dims; i++ {
		pos.SetVec(i, x.AtVec(i))
	}

	return pos
}

// Velocity returns the velocity components of state x.
func (c *ConstantVelocity) Velocity(x mat.Vector) mat.Vector {
	vel := mat.NewVecDense(c.dims, nil)
	for i := 0; i < c.dims; i++ {
		vel.SetVec(i, x.AtVec(c.dims+i))
	}

	return vel
}

// WhiteAccelNoise builds the discrete white noise acceleration covariance
// for a constant velocity model over dims spatial dimensions:
// per axis, Cov(p,p) = qc*dt^3/3, Cov(p,v) = qc*dt^2/2, Cov(v,v) = qc*dt,
// where qc is the continuous-time acceleration noise intensity.
func WhiteAccelNoise(dims int, qc, dt float64) *mat.SymDense {
	nx := 2 * dims
	q := mat.NewSymDense(nx, nil)
	for i := 0; i < dims; i++ {
		q.SetSym(i, i, qc*dt*dt*dt/3)
		q.SetSym(i, dims+i, qc*dt*dt/2)
		q.SetSym(dims+i, dims+i, qc*dt)
	}

	return q
}
