package optimization

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Minimizer defines the interface for the iterative solvers
type Minimizer interface {
	// Minimize runs the solver from x0 until it converges or fails.
	// The returned Result is never nil, including for failed runs.
	Minimize(ctx context.Context, oracle Oracle, x0 []float64) (*Result, error)
}

// Evaluation is the oracle's answer at a single point
type Evaluation struct {
	Value    float64
	Gradient []float64
	// Hessian is nil when the oracle does not compute second derivatives.
	Hessian *mat.SymDense
}

// Finite reports whether the value and every gradient component are finite.
func (e *Evaluation) Finite() bool {
	if e == nil || math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return false
	}
	for _, g := range e.Gradient {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return false
		}
	}
	return true
}

// IterationRecord describes one accepted iteration
type IterationRecord struct {
	Iteration    int       `json:"iteration"`
	Point        []float64 `json:"point"`
	Value        float64   `json:"value"`
	GradientNorm float64   `json:"gradient_norm"`
	Step         float64   `json:"step"`
	Evaluations  int       `json:"evaluations"`
}

// Termination names the criterion that stopped a successful run
type Termination string

const (
	TerminationNone     Termination = ""
	GradientTolerance   Termination = "gradient_tolerance"
	StepTolerance       Termination = "step_tolerance"
	StationaryDirection Termination = "stationary_direction"
)

// Result contains the outcome of a solver run
type Result struct {
	Point         []float64         `json:"point"`
	Value         float64           `json:"value"`
	GradientNorm  float64           `json:"gradient_norm"`
	Iterations    int               `json:"iterations"`
	Evaluations   int               `json:"evaluations"`
	Success       bool              `json:"success"`
	FailureReason FailureReason     `json:"failure_reason,omitempty"`
	Termination   Termination       `json:"termination,omitempty"`
	History       []IterationRecord `json:"history,omitempty"`
}
