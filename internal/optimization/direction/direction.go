// Package direction computes search directions for the iteration driver.
//
// A Strategy proposes a direction at the current iterate and learns from each
// accepted step. Strategies built with bounds return feasible directions
// d = P(x + v) - x, so that x + αd stays in the box for α ∈ [0, 1].
package direction

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/curvature"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// State is an accepted iterate.
type State struct {
	Iteration int
	X         []float64
	Eval      *optimization.Evaluation
}

// Proposal is a search direction with an optional initial step hint.
type Proposal struct {
	Direction []float64
	// InitialStep is passed to the line search; zero leaves its default.
	InitialStep float64
	// Reset is set when the strategy fell back to steepest descent because
	// its own direction was not a descent direction.
	Reset  bool
	Detail string
}

// Strategy computes directions. Init must be called once per run before any
// other method and discards state from previous runs.
type Strategy interface {
	Name() string
	Init(s State) error
	Direction(s State) (*Proposal, error)
	// Update is called after every accepted step from prev to next.
	Update(prev, next State) curvature.Status
}

// feasible maps an unconstrained step v at x to a direction.
func feasible(bounds *projection.Bounds, x, v []float64) []float64 {
	if bounds == nil {
		return v
	}
	return bounds.FeasibleDirection(x, v)
}

// steepest returns -g, or P(x - g) - x in a box.
func steepest(bounds *projection.Bounds, s State) []float64 {
	if bounds != nil {
		return bounds.ProjectedGradientDirection(s.X, s.Eval.Gradient, 1)
	}
	d := make([]float64, len(s.Eval.Gradient))
	floats.ScaleTo(d, -1, s.Eval.Gradient)
	return d
}

func isDescent(g, d []float64) bool {
	gd := floats.Dot(g, d)
	return gd < 0 && !math.IsInf(gd, -1)
}

// ensureDescent falls back to steepest descent when d does not decrease f.
// A zero step direction at a stationary point is left alone.
func ensureDescent(bounds *projection.Bounds, s State, p *Proposal) *Proposal {
	if isDescent(s.Eval.Gradient, p.Direction) {
		return p
	}
	fallback := steepest(bounds, s)
	if floats.Norm(fallback, 2) == 0 {
		return &Proposal{Direction: fallback}
	}
	detail := p.Detail
	if detail == "" {
		detail = "direction is not a descent direction"
	}
	return &Proposal{Direction: fallback, Reset: true, Detail: detail}
}

func dimensionError(component string, want, got int) error {
	return optimization.NewErrorf(optimization.InvalidSettings,
		"expected %d variables, got %d", want, got).
		WithComponent(component).WithOperation("init")
}
