package direction

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization/curvature"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// Spectral is the spectral projected gradient method, d = P(x - λg) - x with
// the Barzilai-Borwein step λ = sᵗs/sᵗy clamped to [LambdaMin, LambdaMax].
// Non-positive curvature resets λ to LambdaMax. Without bounds d = -λg.
type Spectral struct {
	Bounds    *projection.Bounds
	LambdaMin float64
	LambdaMax float64

	lambda float64
}

func (sp *Spectral) Name() string { return "spectral" }

// Lambda returns the current spectral step.
func (sp *Spectral) Lambda() float64 { return sp.lambda }

func (sp *Spectral) limits() (float64, float64) {
	lo, hi := sp.LambdaMin, sp.LambdaMax
	if lo <= 0 {
		lo = projection.DefaultSpectralMin
	}
	if hi <= 0 {
		hi = projection.DefaultSpectralMax
	}
	return lo, hi
}

// Init sets λ₀ = 1/‖P(x - g) - x‖∞, clamped.
func (sp *Spectral) Init(s State) error {
	lo, hi := sp.limits()
	d := steepest(sp.Bounds, s)
	norm := floats.Norm(d, math.Inf(1))
	if norm == 0 {
		sp.lambda = hi
		return nil
	}
	sp.lambda = math.Max(lo, math.Min(1/norm, hi))
	return nil
}

func (sp *Spectral) Direction(s State) (*Proposal, error) {
	if sp.Bounds != nil {
		return &Proposal{Direction: sp.Bounds.ProjectedGradientDirection(s.X, s.Eval.Gradient, sp.lambda)}, nil
	}
	d := make([]float64, len(s.X))
	floats.ScaleTo(d, -sp.lambda, s.Eval.Gradient)
	return &Proposal{Direction: d}, nil
}

func (sp *Spectral) Update(prev, next State) curvature.Status {
	lo, hi := sp.limits()
	n := len(prev.X)
	sv := make([]float64, n)
	yv := make([]float64, n)
	floats.SubTo(sv, next.X, prev.X)
	floats.SubTo(yv, next.Eval.Gradient, prev.Eval.Gradient)
	if floats.Dot(sv, yv) <= 0 {
		sp.lambda = hi
		return curvature.SkippedCurvature
	}
	sp.lambda = projection.SpectralStep(sv, yv, lo, hi)
	return curvature.Applied
}
