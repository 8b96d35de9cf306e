// Package autodiff implements forward-mode automatic differentiation for
// vector-valued functions. Derivatives are propagated through the same
// arithmetic the function already performs, so Jacobians are exact to
// floating-point rounding rather than finite-difference approximations.
// A function written over Dual scalars can be evaluated plainly (Eval),
// linearized (Linearize) or differentiated (Jacobian) through one code path.
package autodiff

import "math"

// Dual is a scalar carrying a value and a vector of partial derivatives.
// It represents value + Σ grad[i]·ε_i where the ε_i are formal
// infinitesimals with ε_i·ε_j = 0. Every operation returns a fresh Dual;
// gradient storage is never shared between results.
//
// A Dual with an empty gradient acts as a constant: it combines with any
// seeded Dual and contributes zero derivative. The zero value is the
// constant 0. Combining two Duals seeded with different non-zero gradient
// lengths is a programming error and panics, mirroring the shape panics
// of gonum/mat.
type Dual struct {
	// Real is the scalar value
	Real float64
	// grad holds the partial derivatives w.r.t. each seeded input
	grad []float64
}

// Const returns a constant: a Dual with value v and no derivative
// components. Constants combine with Duals of any gradient length.
func Const(v float64) Dual {
	return Dual{Real: v}
}

// Seed returns a Dual with value v and a one-hot gradient of length n:
// 1 in slot i, 0 elsewhere. It is how the driver marks input i of n as
// an independent variable. It panics if i is not in [0,n).
func Seed(v float64, i, n int) Dual {
	if i < 0 || i >= n {
		panic("autodiff: seed index out of range")
	}

	g := make([]float64, n)
	g[i] = 1

	return Dual{Real: v, grad: g}
}

// Grad returns the partial derivative in slot i. Slots beyond the
// gradient length read as zero, so constants report zero everywhere.
func (d Dual) Grad(i int) float64 {
	if i < 0 || i >= len(d.grad) {
		return 0
	}

	return d.grad[i]
}

// GradLen returns the gradient length: the number of seeded inputs this
// Dual carries derivatives for, or 0 for a constant.
func (d Dual) GradLen() int {
	return len(d.grad)
}

// chain applies the chain rule for a unary operation with value v and
// derivative dv at d.Real.
func (d Dual) chain(v, dv float64) Dual {
	g := make([]float64, len(d.grad))
	for i, gi := range d.grad {
		g[i] = dv * gi
	}

	return Dual{Real: v, grad: g}
}

// binary combines two Duals into a result with value v whose gradient is
// da·∇a + db·∇b, promoting an empty gradient to zeros.
func binary(a, b Dual, v, da, db float64) Dual {
	if len(a.grad) != len(b.grad) && len(a.grad) != 0 && len(b.grad) != 0 {
		panic("autodiff: mismatched gradient lengths")
	}

	n := len(a.grad)
	if len(b.grad) > n {
		n = len(b.grad)
	}

	g := make([]float64, n)
	for i, gi := range a.grad {
		g[i] = da * gi
	}
	for i, gi := range b.grad {
		g[i] += db * gi
	}

	return Dual{Real: v, grad: g}
}

// Add returns d + e.
func (d Dual) Add(e Dual) Dual {
	return binary(d, e, d.Real+e.Real, 1, 1)
}

// Sub returns d - e.
func (d Dual) Sub(e Dual) Dual {
	return binary(d, e, d.Real-e.Real, 1, -1)
}

// Mul returns d · e by the product rule.
func (d Dual) Mul(e Dual) Dual {
	return binary(d, e, d.Real*e.Real, e.Real, d.Real)
}

// Div returns d / e by the quotient rule. Division by a zero-valued Dual
// propagates Inf/NaN per IEEE-754; no special handling is applied.
func (d Dual) Div(e Dual) Dual {
	return binary(d, e, d.Real/e.Real, 1/e.Real, -d.Real/(e.Real*e.Real))
}

// Neg returns -d.
func (d Dual) Neg() Dual {
	return d.chain(-d.Real, -1)
}

// Scale returns c·d for a plain scalar c.
func (d Dual) Scale(c float64) Dual {
	return d.chain(c*d.Real, c)
}

// Shift returns d + c for a plain scalar c.
func (d Dual) Shift(c float64) Dual {
	return d.chain(d.Real+c, 1)
}

// Abs returns |d|. The derivative at 0 is taken as +1.
func (d Dual) Abs() Dual {
	return d.chain(math.Abs(d.Real), math.Copysign(1, d.Real))
}

// Sqrt returns √d.
func (d Dual) Sqrt() Dual {
	v := math.Sqrt(d.Real)
	return d.chain(v, 0.5/v)
}

// Exp returns e^d.
func (d Dual) Exp() Dual {
	v := math.Exp(d.Real)
	return d.chain(v, v)
}

// Log returns the natural logarithm of d.
func (d Dual) Log() Dual {
	return d.chain(math.Log(d.Real), 1/d.Real)
}

// Pow returns d^p for a plain scalar exponent p.
func (d Dual) Pow(p float64) Dual {
	return d.chain(math.Pow(d.Real, p), p*math.Pow(d.Real, p-1))
}

// Sin returns sin(d).
func (d Dual) Sin() Dual {
	return d.chain(math.Sin(d.Real), math.Cos(d.Real))
}

// Cos returns cos(d).
func (d Dual) Cos() Dual {
	return d.chain(math.Cos(d.Real), -math.Sin(d.Real))
}

// Tan returns tan(d).
func (d Dual) Tan() Dual {
	v := math.Tan(d.Real)
	return d.chain(v, 1+v*v)
}

// Asin returns arcsin(d).
func (d Dual) Asin() Dual {
	return d.chain(math.Asin(d.Real), 1/math.Sqrt(1-d.Real*d.Real))
}

// Acos returns arccos(d).
func (d Dual) Acos() Dual {
	return d.chain(math.Acos(d.Real), -1/math.Sqrt(1-d.Real*d.Real))
}

// Atan returns arctan(d).
func (d Dual) Atan() Dual {
	return d.chain(math.Atan(d.Real), 1/(1+d.Real*d.Real))
}

// Atan2 returns atan2(d, x): the angle of the point (x, d).
func (d Dual) Atan2(x Dual) Dual {
	r2 := x.Real*x.Real + d.Real*d.Real
	return binary(d, x, math.Atan2(d.Real, x.Real), x.Real/r2, -d.Real/r2)
}

// Hypot returns √(d² + e²) without intermediate overflow in the value.
func (d Dual) Hypot(e Dual) Dual {
	v := math.Hypot(d.Real, e.Real)
	return binary(d, e, v, d.Real/v, e.Real/v)
}
