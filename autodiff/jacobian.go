package autodiff

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Func is a differentiable vector-valued function. The input is a vector
// of Dual scalars; the function must operate on it only through Dual
// arithmetic so derivatives propagate. Extra args are forwarded verbatim
// and are never differentiated: they contribute to the value of the
// output but not to its Jacobian.
//
// Branching on the value of a Dual (d.Real) yields the Jacobian of the
// branch taken; that is the caller's obligation to keep meaningful, the
// driver cannot detect it.
type Func func(x []Dual, args ...float64) []Dual

// Linearize evaluates f at x0 and returns its value together with the
// m×n Jacobian J, J[i][j] = ∂f_i/∂x_j, in a single evaluation of f.
// All n inputs are seeded simultaneously with one-hot gradients, so the
// cost does not grow with the input dimension beyond the Dual arithmetic
// itself. The output dimension m is fixed by f's returned vector.
//
// It returns an error if f or x0 is nil or empty, if f returns no
// outputs, or if an output carries a gradient of a length other than
// x0's (constants with empty gradients are fine and yield zero rows).
func Linearize(f Func, x0 mat.Vector, args ...float64) (mat.Vector, *mat.Dense, error) {
	if f == nil {
		return nil, nil, fmt.Errorf("invalid function: %v", f)
	}

	if x0 == nil || x0.Len() == 0 {
		return nil, nil, fmt.Errorf("invalid input vector: %v", x0)
	}

	n := x0.Len()
	x := make([]Dual, n)
	for j := 0; j < n; j++ {
		x[j] = Seed(x0.AtVec(j), j, n)
	}

	y := f(x, args...)
	if len(y) == 0 {
		return nil, nil, fmt.Errorf("function returned no outputs")
	}

	val := mat.NewVecDense(len(y), nil)
	jac := mat.NewDense(len(y), n, nil)
	for i, yi := range y {
		val.SetVec(i, yi.Real)

		switch yi.GradLen() {
		case n:
			for j := 0; j < n; j++ {
				jac.Set(i, j, yi.Grad(j))
			}
		case 0:
			// constant output: zero row
		default:
			return nil, nil, fmt.Errorf("invalid gradient length in output %d: %d", i, yi.GradLen())
		}
	}

	return val, jac, nil
}

// Jacobian returns the m×n Jacobian of f at x0. Extra args are passed
// through to f without being differentiated.
func Jacobian(f Func, x0 mat.Vector, args ...float64) (*mat.Dense, error) {
	_, jac, err := Linearize(f, x0, args...)
	if err != nil {
		return nil, err
	}

	return jac, nil
}

// Eval evaluates f at x0 without seeding any derivatives: the inputs are
// lifted to constant Duals, so the same function body serves for plain
// evaluation and for linearization.
func Eval(f Func, x0 mat.Vector, args ...float64) (mat.Vector, error) {
	if f == nil {
		return nil, fmt.Errorf("invalid function: %v", f)
	}

	if x0 == nil || x0.Len() == 0 {
		return nil, fmt.Errorf("invalid input vector: %v", x0)
	}

	x := make([]Dual, x0.Len())
	for j := 0; j < x0.Len(); j++ {
		x[j] = Const(x0.AtVec(j))
	}

	y := f(x, args...)
	if len(y) == 0 {
		return nil, fmt.Errorf("function returned no outputs")
	}

	val := mat.NewVecDense(len(y), nil)
	for i, yi := range y {
		val.SetVec(i, yi.Real)
	}

	return val, nil
}
