package linesearch

import (
	"github.com/copyleftdev/descent/internal/optimization"
)

// Backtracking is the Armijo backtracking search. Starting from the initial
// step it multiplies the step by Shrink until
//
//	f(x+αd) ≤ f(x) + C1·α·gᵗd
//
// Trials with a non-finite value or gradient are rejected and shrunk.
type Backtracking struct {
	C1        float64
	Shrink    float64
	MinStep   float64
	MaxTrials int
}

// NewBacktracking returns a backtracking search with default parameters.
func NewBacktracking() *Backtracking {
	return &Backtracking{
		C1:        DefaultC1,
		Shrink:    DefaultShrink,
		MinStep:   DefaultMinStep,
		MaxTrials: DefaultMaxTrials,
	}
}

// Name implements Searcher.
func (*Backtracking) Name() string { return "backtracking" }

// Search implements Searcher.
func (b *Backtracking) Search(oracle optimization.Oracle, req Request) (*Outcome, error) {
	const component = "backtracking"

	gd, err := directionalDerivative(component, req)
	if err != nil {
		return nil, err
	}
	c1, shrink, minStep, maxTrials := b.C1, b.Shrink, b.MinStep, b.MaxTrials
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

	t := initialStep(req)
	for n := 1; n <= maxTrials; n++ {
		if t < minStep {
			return nil, failure(component, "step %g fell below the minimum %g", t, minStep)
		}
		x, eval, err := trial(oracle, req, t)
		if err != nil {
			return nil, err
		}
		if eval.Finite() && eval.Value <= req.Value+c1*t*gd {
			return &Outcome{Step: t, X: x, Eval: eval, Evaluations: n, Status: status(req, t)}, nil
		}
		t *= shrink
	}
	return nil, failure(component, "no sufficient decrease after %d trials", maxTrials)
}

func status(req Request, t float64) Status {
	if req.MaxStep > 0 && t == req.MaxStep {
		return StatusMaxStep
	}
	return StatusConverged
}
