package direction

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/curvature"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// QuasiNewton computes d = -H·g from an inverse Hessian approximation that is
// updated with every accepted step. With bounds the approximation is wrapped
// in curvature.Bounded and the direction is made feasible.
type QuasiNewton struct {
	Bounds *projection.Bounds
	// Build creates the approximation for n variables on Init.
	Build func(n int) (curvature.Approximation, error)

	name   string
	approx curvature.Approximation
	masked *curvature.Bounded
}

// NewQuasiNewton returns a dense quasi-Newton strategy.
func NewQuasiNewton(kind curvature.Kind, opts curvature.Options, bounds *projection.Bounds) *QuasiNewton {
	return &QuasiNewton{
		Bounds: bounds,
		Build: func(n int) (curvature.Approximation, error) {
			return curvature.NewDense(kind, n, opts)
		},
		name: kind.String(),
	}
}

// NewLBFGS returns a limited-memory BFGS strategy keeping memory pairs.
func NewLBFGS(memory int, opts curvature.Options, bounds *projection.Bounds) *QuasiNewton {
	return &QuasiNewton{
		Bounds: bounds,
		Build: func(n int) (curvature.Approximation, error) {
			return curvature.NewLBFGS(n, memory, opts)
		},
		name: "lbfgs",
	}
}

func (q *QuasiNewton) Name() string {
	name := q.name
	if name == "" {
		name = "quasi_newton"
	}
	if q.Bounds != nil {
		return name + "_b"
	}
	return name
}

// Approximation returns the current approximation, nil before Init.
func (q *QuasiNewton) Approximation() curvature.Approximation { return q.approx }

func (q *QuasiNewton) Init(s State) error {
	if q.Build == nil {
		return optimization.NewError(optimization.InvalidSettings, "no approximation constructor").
			WithComponent("quasi_newton").WithOperation("init")
	}
	approx, err := q.Build(len(s.X))
	if err != nil {
		return optimization.WrapError(err, optimization.InvalidSettings, "building approximation").
			WithComponent("quasi_newton").WithOperation("init")
	}
	q.approx, q.masked = approx, nil
	if q.Bounds != nil {
		q.masked = curvature.NewBounded(approx, q.Bounds)
		q.approx = q.masked
	}
	return nil
}

func (q *QuasiNewton) Direction(s State) (*Proposal, error) {
	if q.masked != nil {
		q.masked.SetPoint(s.X, s.Eval.Gradient)
	}
	v := make([]float64, len(s.X))
	q.approx.MulVecTo(v, s.Eval.Gradient)
	floats.Scale(-1, v)
	d := feasible(q.Bounds, s.X, v)

	p := &Proposal{Direction: d}
	if s.Iteration == 0 {
		// H is still the identity: take a short first step.
		if norm := floats.Norm(d, 2); norm > 0 {
			p.InitialStep = math.Min(1, 1/norm)
		}
	}
	return ensureDescent(q.Bounds, s, p), nil
}

func (q *QuasiNewton) Update(prev, next State) curvature.Status {
	n := len(prev.X)
	sv := make([]float64, n)
	yv := make([]float64, n)
	floats.SubTo(sv, next.X, prev.X)
	floats.SubTo(yv, next.Eval.Gradient, prev.Eval.Gradient)
	if q.masked != nil {
		q.masked.SetPoint(next.X, next.Eval.Gradient)
	}
	return q.approx.Update(sv, yv)
}
