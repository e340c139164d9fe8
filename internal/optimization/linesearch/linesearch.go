// Package linesearch finds step lengths along a descent direction that satisfy
// a decrease (Armijo) or strong Wolfe criterion.
package linesearch

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization"
)

// Default tolerances from the literature.
const (
	DefaultC1        = 1e-4
	DefaultC2        = 0.9
	DefaultShrink    = 0.5
	DefaultMaxTrials = 50
	DefaultMinStep   = 1e-20
)

// Request describes one line search along X + α·Direction.
type Request struct {
	X         []float64
	Direction []float64
	// Value and Gradient are f(X) and ∇f(X).
	Value    float64
	Gradient []float64
	// InitialStep is the first trial; zero means 1.
	InitialStep float64
	// MaxStep caps every trial; zero means unbounded. Bounded solvers pass the
	// largest step that keeps X + α·Direction feasible.
	MaxStep float64
}

// Status describes how an accepted step was obtained.
type Status int

const (
	StatusConverged Status = iota
	// StatusMaxStep means the step was stopped at Request.MaxStep with
	// sufficient decrease but without the curvature condition.
	StatusMaxStep
)

// Outcome is an accepted step with the evaluated point.
type Outcome struct {
	Step        float64
	X           []float64
	Eval        *optimization.Evaluation
	Evaluations int
	Status      Status
}

// Searcher is a line search strategy, selected once at solver construction.
type Searcher interface {
	Search(oracle optimization.Oracle, req Request) (*Outcome, error)
	Name() string
}

// Resetter is implemented by searchers that keep state across calls.
type Resetter interface {
	Reset()
}

// directionalDerivative validates the request and returns gᵗd.
func directionalDerivative(component string, req Request) (float64, error) {
	if len(req.X) != len(req.Direction) || len(req.X) != len(req.Gradient) {
		return 0, optimization.NewErrorf(optimization.InvalidSettings,
			"dimension mismatch: x=%d d=%d g=%d", len(req.X), len(req.Direction), len(req.Gradient)).
			WithComponent(component).WithOperation("search")
	}
	gd := floats.Dot(req.Gradient, req.Direction)
	if !(gd < 0) || math.IsInf(gd, -1) {
		return gd, optimization.NewErrorf(optimization.NotDescentDirection,
			"directional derivative %g is not negative", gd).
			WithComponent(component).WithOperation("search")
	}
	return gd, nil
}

// initialStep resolves the first trial step of a request.
func initialStep(req Request) float64 {
	t := req.InitialStep
	if t <= 0 || math.IsNaN(t) {
		t = 1
	}
	if req.MaxStep > 0 && t > req.MaxStep {
		t = req.MaxStep
	}
	return t
}

// trial evaluates the oracle at x + t·d.
func trial(oracle optimization.Oracle, req Request, t float64) ([]float64, *optimization.Evaluation, error) {
	x := make([]float64, len(req.X))
	floats.AddScaledTo(x, req.X, t, req.Direction)
	eval, err := oracle.Evaluate(x)
	if err != nil {
		return nil, nil, optimization.WrapError(err, optimization.EvaluationFailed, "oracle evaluation failed")
	}
	return x, eval, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func failure(component string, format string, args ...interface{}) error {
	return optimization.NewErrorf(optimization.LineSearchFailure, format, args...).
		WithComponent(component).WithOperation("search")
}
