// Package projection clips points and directions to box constraints and
// estimates spectral step lengths for projected-gradient methods.
package projection

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization"
)

// Bounds is a box l ≤ x ≤ u. Entries may be infinite for one-sided or free
// coordinates. A Bounds value must not be modified after validation.
type Bounds struct {
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
}

// NewBounds copies and validates lower and upper.
func NewBounds(lower, upper []float64) (*Bounds, error) {
	b := &Bounds{
		Lower: append([]float64(nil), lower...),
		Upper: append([]float64(nil), upper...),
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Uniform returns n-dimensional bounds with the same interval on every coordinate.
func Uniform(n int, lower, upper float64) (*Bounds, error) {
	lo := make([]float64, n)
	hi := make([]float64, n)
	for i := range lo {
		lo[i], hi[i] = lower, upper
	}
	return NewBounds(lo, hi)
}

// Validate checks that both vectors have the same length, contain no NaN and
// satisfy Lower[i] ≤ Upper[i].
func (b *Bounds) Validate() error {
	if b == nil {
		return nil
	}
	if len(b.Lower) != len(b.Upper) {
		return optimization.NewErrorf(optimization.InvalidBounds,
			"lower has %d entries, upper has %d", len(b.Lower), len(b.Upper)).
			WithComponent("projection").WithOperation("validate")
	}
	for i := range b.Lower {
		l, u := b.Lower[i], b.Upper[i]
		if math.IsNaN(l) || math.IsNaN(u) {
			return optimization.NewErrorf(optimization.InvalidBounds, "bound %d is NaN", i).
				WithComponent("projection").WithOperation("validate")
		}
		if l > u {
			return optimization.NewErrorf(optimization.InvalidBounds,
				"lower[%d]=%g exceeds upper[%d]=%g", i, l, i, u).
				WithComponent("projection").WithOperation("validate")
		}
	}
	return nil
}

// Dim returns the number of bounded coordinates.
func (b *Bounds) Dim() int {
	return len(b.Lower)
}

// Contains reports whether x lies inside the box.
func (b *Bounds) Contains(x []float64) bool {
	for i, v := range x {
		if v < b.Lower[i] || v > b.Upper[i] {
			return false
		}
	}
	return true
}

// Project returns a new slice holding x clipped into the box.
func (b *Bounds) Project(x []float64) []float64 {
	return b.ProjectTo(make([]float64, len(x)), x)
}

// ProjectTo stores the projection of x into dst and returns dst.
// dst and x may alias.
func (b *Bounds) ProjectTo(dst, x []float64) []float64 {
	if len(dst) != len(x) || len(x) != len(b.Lower) {
		panic("projection: dimension mismatch")
	}
	for i, v := range x {
		switch {
		case v < b.Lower[i]:
			dst[i] = b.Lower[i]
		case v > b.Upper[i]:
			dst[i] = b.Upper[i]
		default:
			dst[i] = v
		}
	}
	return dst
}

// ProjectedGradientDirection returns P(x - step·g) - x, the feasible direction
// used by projected and spectral projected gradient methods.
func (b *Bounds) ProjectedGradientDirection(x, g []float64, step float64) []float64 {
	d := make([]float64, len(x))
	floats.AddScaledTo(d, x, -step, g)
	b.ProjectTo(d, d)
	floats.Sub(d, x)
	return d
}

// FeasibleDirection returns P(x + v) - x.
func (b *Bounds) FeasibleDirection(x, v []float64) []float64 {
	d := make([]float64, len(x))
	floats.AddTo(d, x, v)
	b.ProjectTo(d, d)
	floats.Sub(d, x)
	return d
}

// Active reports, per coordinate, whether x sits on a bound while the descent
// direction -g points outside the box.
func (b *Bounds) Active(x, g []float64) []bool {
	active := make([]bool, len(x))
	for i := range x {
		active[i] = (x[i] <= b.Lower[i] && g[i] > 0) || (x[i] >= b.Upper[i] && g[i] < 0)
	}
	return active
}

// ProjectedGradient returns g with the components of active coordinates set
// to zero. Its norm is the first-order optimality measure for the box.
func (b *Bounds) ProjectedGradient(x, g []float64) []float64 {
	pg := append([]float64(nil), g...)
	for i, a := range b.Active(x, g) {
		if a {
			pg[i] = 0
		}
	}
	return pg
}

// MaxFeasibleStep returns the largest t ≥ 0 such that x + t·d stays inside the
// box, or +Inf when d never leaves it.
func (b *Bounds) MaxFeasibleStep(x, d []float64) float64 {
	t := math.Inf(1)
	for i, di := range d {
		switch {
		case di > 0 && !math.IsInf(b.Upper[i], 1):
			t = math.Min(t, math.Max(0, (b.Upper[i]-x[i])/di))
		case di < 0 && !math.IsInf(b.Lower[i], -1):
			t = math.Min(t, math.Max(0, (b.Lower[i]-x[i])/di))
		}
	}
	return t
}

// ProjectedGradient returns the optimality measure for an optional box:
// g itself when b is nil.
func ProjectedGradient(b *Bounds, x, g []float64) []float64 {
	if b == nil {
		return g
	}
	return b.ProjectedGradient(x, g)
}
