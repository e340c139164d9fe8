package projection

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultSpectralMin and DefaultSpectralMax bound the Barzilai-Borwein step.
	DefaultSpectralMin = 1e-3
	DefaultSpectralMax = 1e3
)

// SpectralStep estimates a step length from the last accepted pair
// s = x₊ - x, y = g₊ - g as sᵗs / sᵗy, clamped to [min, max].
// A non-positive curvature sᵗy ≤ 0 yields max.
func SpectralStep(s, y []float64, min, max float64) float64 {
	sy := floats.Dot(s, y)
	if sy <= 0 || math.IsNaN(sy) {
		return max
	}
	return clamp(floats.Dot(s, s)/sy, min, max)
}

// InverseSpectralStep is the reciprocal form sᵗy / yᵗy, clamped to [min, max].
func InverseSpectralStep(s, y []float64, min, max float64) float64 {
	sy := floats.Dot(s, y)
	yy := floats.Dot(y, y)
	if sy <= 0 || yy == 0 || math.IsNaN(sy) {
		return max
	}
	return clamp(sy/yy, min, max)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
