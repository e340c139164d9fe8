// Package curvature maintains quasi-Newton approximations of the inverse
// Hessian from pairs s = x₊ - x, y = g₊ - g.
package curvature

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultCurvatureTol is ε in the skip test yᵗs ≤ ε‖y‖‖s‖.
	DefaultCurvatureTol = 1e-10
	// DefaultStepTol is the smallest ‖s‖ or ‖y‖ that still produces an update.
	DefaultStepTol = 1e-14
	// DefaultSR1Tol is r in the SR1 test |(s-Hy)ᵗy| < r‖y‖‖s-Hy‖.
	DefaultSR1Tol = 1e-8
)

// Status reports what an Update did.
type Status int

const (
	// NoUpdate is reported by strategies that keep no approximation.
	NoUpdate Status = iota
	Applied
	SkippedCurvature
	SkippedDenominator
	SkippedSmallStep
)

func (s Status) String() string {
	switch s {
	case NoUpdate:
		return "no_update"
	case Applied:
		return "applied"
	case SkippedCurvature:
		return "skipped_curvature"
	case SkippedDenominator:
		return "skipped_denominator"
	case SkippedSmallStep:
		return "skipped_small_step"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Skipped reports whether the pair was rejected.
func (s Status) Skipped() bool {
	return s == SkippedCurvature || s == SkippedDenominator || s == SkippedSmallStep
}

// Approximation is an inverse Hessian approximation H.
type Approximation interface {
	// Dim returns n for an n×n approximation.
	Dim() int
	// MulVecTo stores H·v in dst. dst and v may alias.
	MulVecTo(dst, v []float64)
	// Update folds the pair (s, y) into H, or reports why it was skipped.
	// s and y are not retained.
	Update(s, y []float64) Status
	// Reset restores the initial approximation.
	Reset()
	// Matrix returns a copy of H.
	Matrix() mat.Matrix
}

// Options holds the skip tolerances of the updates. CurvatureTol and StepTol
// apply to every update, SR1Tol only to SR1.
type Options struct {
	CurvatureTol float64
	StepTol      float64
	SR1Tol       float64
}

// DefaultOptions returns the default skip tolerances.
func DefaultOptions() Options {
	return Options{CurvatureTol: DefaultCurvatureTol, StepTol: DefaultStepTol, SR1Tol: DefaultSR1Tol}
}

func (o Options) withDefaults() Options {
	if o.CurvatureTol <= 0 {
		o.CurvatureTol = DefaultCurvatureTol
	}
	if o.StepTol <= 0 {
		o.StepTol = DefaultStepTol
	}
	if o.SR1Tol <= 0 {
		o.SR1Tol = DefaultSR1Tol
	}
	return o
}

// check applies the common guard and returns yᵗs when the pair is usable.
func (o Options) check(s, y []float64) (float64, Status) {
	if len(s) != len(y) {
		panic("curvature: dimension mismatch")
	}
	ns, ny := floats.Norm(s, 2), floats.Norm(y, 2)
	if ns < o.StepTol || ny < o.StepTol {
		return 0, SkippedSmallStep
	}
	sy := floats.Dot(s, y)
	if math.IsNaN(sy) || sy <= o.CurvatureTol*ns*ny {
		return sy, SkippedCurvature
	}
	return sy, Applied
}

// Kind selects a dense update formula.
type Kind int

const (
	BFGS Kind = iota
	DFP
	Broyden
	SR1
)

func (k Kind) String() string {
	switch k {
	case BFGS:
		return "bfgs"
	case DFP:
		return "dfp"
	case Broyden:
		return "broyden"
	case SR1:
		return "sr1"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// NewDense returns an n×n approximation initialised to the identity.
func NewDense(kind Kind, n int, opts Options) (Approximation, error) {
	if n <= 0 {
		return nil, fmt.Errorf("curvature: dimension must be positive, got %d", n)
	}
	opts = opts.withDefaults()
	switch kind {
	case BFGS:
		return newSymmetric(n, opts, bfgsUpdate), nil
	case DFP:
		return newSymmetric(n, opts, dfpUpdate), nil
	case SR1:
		return newSymmetric(n, opts, sr1Update), nil
	case Broyden:
		return newBroyden(n, opts), nil
	}
	return nil, fmt.Errorf("curvature: unknown kind %d", int(kind))
}
