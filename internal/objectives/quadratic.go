package objectives

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// quadratic is f(x) = Σ i·xᵢ², i = 1..n, with condition number n.
func quadratic(name string, n int) *Objective {
	return &Objective{
		Name:        name,
		Description: fmt.Sprintf("diagonal quadratic with condition number %d", n),
		Dim:         n,
		Start:       fill(n, 1),
		Minimum:     0,
		Minimizer:   fill(n, 0),
		Hessian:     true,
		problem:     diagonal(n, 0),
	}
}

// shiftedQuadratic is f(x) = Σ (xᵢ - c)².
func shiftedQuadratic(name string, n int, c float64) *Objective {
	return &Objective{
		Name:        name,
		Description: fmt.Sprintf("separable quadratic centred at %g", c),
		Dim:         n,
		Start:       fill(n, 0),
		Hessian:     true,
		problem:     diagonal(n, c, 1),
	}
}

// diagonal builds Σ wᵢ(xᵢ - c)². Without explicit weights wᵢ = i+1.
func diagonal(n int, c float64, weights ...float64) optimize.Problem {
	w := make([]float64, n)
	for i := range w {
		w[i] = float64(i + 1)
		if len(weights) > 0 {
			w[i] = weights[0]
		}
	}
	return optimize.Problem{
		Func: func(x []float64) float64 {
			var f float64
			for i, xi := range x {
				d := xi - c
				f += w[i] * d * d
			}
			return f
		},
		Grad: func(grad, x []float64) {
			for i, xi := range x {
				grad[i] = 2 * w[i] * (xi - c)
			}
		},
		Hess: func(dst *mat.SymDense, x []float64) {
			dst.Zero()
			for i := range x {
				dst.SetSym(i, i, 2*w[i])
			}
		},
	}
}
