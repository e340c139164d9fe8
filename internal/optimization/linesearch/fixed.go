package linesearch

import (
	"github.com/copyleftdev/descent/internal/optimization"
)

// Fixed takes a constant step without searching. It still rejects ascent
// directions, caps the step at the request's MaxStep and fails on a
// non-finite trial.
type Fixed struct {
	Step float64
}

// Name implements Searcher.
func (*Fixed) Name() string { return "fixed" }

// Search implements Searcher.
func (fx *Fixed) Search(oracle optimization.Oracle, req Request) (*Outcome, error) {
	const component = "fixed"

	if _, err := directionalDerivative(component, req); err != nil {
		return nil, err
	}
	step := fx.Step
	if step <= 0 {
		step = 1
	}
	if req.MaxStep > 0 && step > req.MaxStep {
		step = req.MaxStep
	}
	x, eval, err := trial(oracle, req, step)
	if err != nil {
		return nil, err
	}
	if !eval.Finite() {
		return nil, failure(component, "non-finite value at step %g", step)
	}
	return &Outcome{Step: step, X: x, Eval: eval, Evaluations: 1, Status: status(req, step)}, nil
}
