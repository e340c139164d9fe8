package direction

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/curvature"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// PNorm is steepest descent in the norm ‖v‖ₚ = √(vᵗPv), d = -P⁻¹g.
// A P close to the Hessian improves the conditioning; P = I is Gradient.
type PNorm struct {
	// InverseP is P⁻¹, symmetric positive definite.
	InverseP mat.Symmetric
	Bounds   *projection.Bounds
}

// NewPNorm builds a p-norm strategy from the preconditioner P itself.
func NewPNorm(p mat.Symmetric, bounds *projection.Bounds) (*PNorm, error) {
	var chol mat.Cholesky
	if !chol.Factorize(p) {
		return nil, optimization.NewError(optimization.InvalidSettings,
			"preconditioner is not positive definite").
			WithComponent("pnorm").WithOperation("new")
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, optimization.WrapError(err, optimization.InvalidSettings,
			"preconditioner is singular").WithComponent("pnorm").WithOperation("new")
	}
	return &PNorm{InverseP: &inv, Bounds: bounds}, nil
}

func (p *PNorm) Name() string { return "pnorm" }

func (p *PNorm) Init(s State) error {
	if p.InverseP == nil {
		return optimization.NewError(optimization.InvalidSettings, "inverse preconditioner is required").
			WithComponent("pnorm").WithOperation("init")
	}
	if n := p.InverseP.SymmetricDim(); n != len(s.X) {
		return dimensionError("pnorm", n, len(s.X))
	}
	return nil
}

func (p *PNorm) Direction(s State) (*Proposal, error) {
	n := len(s.X)
	var v mat.VecDense
	v.MulVec(p.InverseP, mat.NewVecDense(n, append([]float64(nil), s.Eval.Gradient...)))
	v.ScaleVec(-1, &v)
	d := feasible(p.Bounds, s.X, mat.Col(nil, 0, &v))
	return ensureDescent(p.Bounds, s, &Proposal{Direction: d}), nil
}

func (p *PNorm) Update(State, State) curvature.Status { return curvature.NoUpdate }
