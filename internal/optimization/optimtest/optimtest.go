// Package optimtest provides objectives and assertions shared by the solver tests.
package optimtest

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
)

// Quadratic is f(x) = ½xᵗAx - bᵗx with a symmetric positive definite A.
type Quadratic struct {
	A *mat.SymDense
	B []float64
}

// NewQuadratic builds a quadratic from a row-major symmetric matrix.
func NewQuadratic(n int, a []float64, b []float64) *Quadratic {
	return &Quadratic{A: mat.NewSymDense(n, a), B: b}
}

// Evaluate implements optimization.Oracle, Hessian included.
func (q *Quadratic) Evaluate(x []float64) (*optimization.Evaluation, error) {
	n := len(x)
	ax := mat.NewVecDense(n, nil)
	ax.MulVec(q.A, mat.NewVecDense(n, append([]float64(nil), x...)))

	grad := make([]float64, n)
	for i := range grad {
		grad[i] = ax.AtVec(i)
	}
	value := 0.5*floats.Dot(x, grad) - floats.Dot(q.B, x)
	floats.Sub(grad, q.B)

	hess := mat.NewSymDense(n, nil)
	hess.CopySym(q.A)
	return &optimization.Evaluation{Value: value, Gradient: grad, Hessian: hess}, nil
}

// Minimizer returns A⁻¹b.
func (q *Quadratic) Minimizer() []float64 {
	var chol mat.Cholesky
	if !chol.Factorize(q.A) {
		panic("optimtest: quadratic is not positive definite")
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(len(q.B), append([]float64(nil), q.B...))); err != nil {
		panic(err)
	}
	return mat.Col(nil, 0, &x)
}

// Shifted is f(x) = Σ wᵢ(xᵢ - cᵢ)², separable with minimizer c.
func Shifted(weights, center []float64) optimization.Oracle {
	return optimization.OracleFunc(func(x []float64) (*optimization.Evaluation, error) {
		grad := make([]float64, len(x))
		var value float64
		for i := range x {
			d := x[i] - center[i]
			value += weights[i] * d * d
			grad[i] = 2 * weights[i] * d
		}
		return &optimization.Evaluation{Value: value, Gradient: grad}, nil
	})
}

// Rosenbrock is the two-dimensional Rosenbrock function without a Hessian.
var Rosenbrock = optimization.OracleFunc(func(x []float64) (*optimization.Evaluation, error) {
	a, b := 1-x[0], x[1]-x[0]*x[0]
	return &optimization.Evaluation{
		Value:    a*a + 100*b*b,
		Gradient: []float64{-2*a - 400*x[0]*b, 200 * b},
	}, nil
})

// AssertFloat64SlicesEqual checks if two float64 slices are approximately equal
func AssertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// AssertMatEqual checks if two matrices are approximately equal
func AssertMatEqual(t *testing.T, got, want mat.Matrix, tol float64) {
	t.Helper()

	rg, cg := got.Dims()
	rw, cw := want.Dims()
	if rg != rw || cg != cw {
		t.Fatalf("matrix dimensions mismatch: got %dx%d, want %dx%d", rg, cg, rw, cw)
	}

	for i := 0; i < rg; i++ {
		for j := 0; j < cg; j++ {
			if g, w := got.At(i, j), want.At(i, j); math.Abs(g-w) > tol {
				t.Fatalf("at (%d,%d): got %v, want %v (tolerance %v)", i, j, g, w, tol)
			}
		}
	}
}

// AssertSymmetric fails unless m equals its transpose within tol.
func AssertSymmetric(t *testing.T, m mat.Matrix, tol float64) {
	t.Helper()
	AssertMatEqual(t, m, m.T(), tol)
}

// RandomSPD returns a random symmetric positive definite n×n matrix.
func RandomSPD(rng *rand.Rand, n int) *mat.SymDense {
	a := mat.NewDense(n, n, RandomVector(rng, n*n, -1, 1))
	spd := mat.NewSymDense(n, nil)
	spd.SymOuterK(1, a)
	for i := 0; i < n; i++ {
		spd.SetSym(i, i, spd.At(i, i)+float64(n))
	}
	return spd
}

// RandomVector returns size values drawn uniformly from [min, max].
func RandomVector(rng *rand.Rand, size int, min, max float64) []float64 {
	data := make([]float64, size)
	for i := range data {
		data[i] = min + rng.Float64()*(max-min)
	}
	return data
}
