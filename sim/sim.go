// Package sim simulates tracked systems and evaluates tracking filter
// performance: trajectory generation through the tracked models,
// NEES/NIS consistency statistics and simple result plots.
package sim

import "gonum.org/v1/gonum/mat"

// InitCond is an initial condition of a tracked system
type InitCond struct {
	// state is initial state
	state *mat.VecDense
	// cov is initial covariance
	cov *mat.SymDense
}

// NewInitCond creates new InitCond and returns it
func NewInitCond(state mat.Vector, cov mat.Symmetric) *InitCond {
	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}
}

// State returns initial state
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CloneFromVec(c.state)

	return state
}

// Cov returns initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}
