package linesearch

import (
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// Projecting is implemented by searchers that project each trial onto the box
// themselves. The solver does not cap their steps at the feasible limit.
type Projecting interface {
	Searcher
	ProjectsTrials() bool
}

// ProjectedBacktracking is Armijo backtracking along the projection arc
// x(α) = P(x + αd). A trial is accepted when
//
//	f(x(α)) ≤ f(x) + C1·gᵗ(x(α) - x)
//
// so the search may bend around active bounds instead of stopping at the
// first one. With nil Bounds it is plain backtracking.
type ProjectedBacktracking struct {
	Bounds    *projection.Bounds
	C1        float64
	Shrink    float64
	MinStep   float64
	MaxTrials int
}

// NewProjectedBacktracking returns a projected search over b with default
// parameters.
func NewProjectedBacktracking(b *projection.Bounds) *ProjectedBacktracking {
	return &ProjectedBacktracking{
		Bounds:    b,
		C1:        DefaultC1,
		Shrink:    DefaultShrink,
		MinStep:   DefaultMinStep,
		MaxTrials: DefaultMaxTrials,
	}
}

// Name implements Searcher.
func (*ProjectedBacktracking) Name() string { return "projected_backtracking" }

// ProjectsTrials implements Projecting.
func (p *ProjectedBacktracking) ProjectsTrials() bool { return p.Bounds != nil }

// Search implements Searcher. Request.MaxStep is ignored when Bounds is set.
func (p *ProjectedBacktracking) Search(oracle optimization.Oracle, req Request) (*Outcome, error) {
	const component = "projected_backtracking"

	if _, err := directionalDerivative(component, req); err != nil {
		return nil, err
	}
	if p.Bounds == nil {
		bt := &Backtracking{C1: p.C1, Shrink: p.Shrink, MinStep: p.MinStep, MaxTrials: p.MaxTrials}
		return bt.Search(oracle, req)
	}
	if p.Bounds.Dim() != len(req.X) {
		return nil, optimization.NewErrorf(optimization.InvalidBounds,
			"bounds have %d entries, point has %d", p.Bounds.Dim(), len(req.X)).
			WithComponent(component).WithOperation("search")
	}
	c1, shrink, minStep, maxTrials := p.C1, p.Shrink, p.MinStep, p.MaxTrials
	if c1 <= 0 || c1 >= 1 {
		c1 = DefaultC1
	}
	if shrink <= 0 || shrink >= 1 {
		shrink = DefaultShrink
	}
	if minStep <= 0 {
		minStep = DefaultMinStep
	}
	if maxTrials <= 0 {
		maxTrials = DefaultMaxTrials
	}

	t := req.InitialStep
	if !(t > 0) {
		t = 1
	}
	n := len(req.X)
	x, delta := make([]float64, n), make([]float64, n)
	evals := 0
	for trials := 1; trials <= maxTrials; trials++ {
		if t < minStep {
			return nil, failure(component, "step %g fell below the minimum %g", t, minStep)
		}
		floats.AddScaledTo(x, req.X, t, req.Direction)
		p.Bounds.ProjectTo(x, x)
		floats.SubTo(delta, x, req.X)
		decrease := floats.Dot(req.Gradient, delta)
		if !(decrease < 0) {
			// The arc left the descent cone or collapsed onto x.
			t *= shrink
			continue
		}

		evals++
		eval, err := oracle.Evaluate(x)
		if err != nil {
			return nil, optimization.WrapError(err, optimization.EvaluationFailed, "oracle evaluation failed")
		}
		if eval.Finite() && eval.Value <= req.Value+c1*decrease {
			return &Outcome{
				Step:        t,
				X:           append([]float64(nil), x...),
				Eval:        eval,
				Evaluations: evals,
				Status:      StatusConverged,
			}, nil
		}
		t *= shrink
	}
	return nil, failure(component, "no sufficient decrease along the projection arc after %d trials", maxTrials)
}
