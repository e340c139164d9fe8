package direction

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/curvature"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// Newton solves ∇²f·v = -g using the oracle's Hessian. A positive definite
// Hessian is factorized with Cholesky, otherwise with LU. A singular Hessian
// falls back to steepest descent. With bounds this is projected Newton,
// d = P(x + v) - x.
type Newton struct {
	Bounds *projection.Bounds
}

func (nt *Newton) Name() string {
	if nt.Bounds != nil {
		return "projected_newton"
	}
	return "newton"
}

func (nt *Newton) Init(s State) error {
	if s.Eval == nil || s.Eval.Hessian == nil {
		return optimization.NewError(optimization.InvalidSettings, "oracle does not provide a Hessian").
			WithComponent("newton").WithOperation("init")
	}
	return nil
}

func (nt *Newton) Direction(s State) (*Proposal, error) {
	if s.Eval.Hessian == nil {
		return nil, optimization.NewError(optimization.EvaluationFailed, "oracle stopped providing a Hessian").
			WithComponent("newton").WithOperation("direction").
			WithIterate(s.Iteration, s.X, s.Eval.Value)
	}
	n := len(s.X)
	rhs := mat.NewVecDense(n, nil)
	for i, gi := range s.Eval.Gradient {
		rhs.SetVec(i, -gi)
	}

	var v mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(s.Eval.Hessian) {
		if err := chol.SolveVecTo(&v, rhs); err != nil {
			return nt.fallback(s, "hessian is ill-conditioned"), nil
		}
	} else {
		var lu mat.LU
		lu.Factorize(s.Eval.Hessian)
		if err := lu.SolveVecTo(&v, false, rhs); err != nil {
			return nt.fallback(s, "hessian is singular"), nil
		}
	}
	d := feasible(nt.Bounds, s.X, mat.Col(nil, 0, &v))
	return ensureDescent(nt.Bounds, s, &Proposal{Direction: d, Detail: "hessian is indefinite"}), nil
}

func (nt *Newton) fallback(s State, detail string) *Proposal {
	return &Proposal{Direction: steepest(nt.Bounds, s), Reset: true, Detail: detail}
}

func (nt *Newton) Update(State, State) curvature.Status { return curvature.NoUpdate }
