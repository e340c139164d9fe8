package curvature

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// Bounded restricts an approximation to the free variables of a box. Call
// SetPoint with the newest iterate before Update or MulVecTo; the active
// coordinates at that point are zeroed in s and y and in products with H.
type Bounded struct {
	Inner  Approximation
	Bounds *projection.Bounds

	active []bool
	s, y   []float64
}

// NewBounded wraps inner.
func NewBounded(inner Approximation, bounds *projection.Bounds) *Bounded {
	n := inner.Dim()
	return &Bounded{
		Inner:  inner,
		Bounds: bounds,
		active: make([]bool, n),
		s:      make([]float64, n),
		y:      make([]float64, n),
	}
}

// SetPoint recomputes the active set at x with gradient g.
func (b *Bounded) SetPoint(x, g []float64) {
	if b.Bounds == nil {
		return
	}
	copy(b.active, b.Bounds.Active(x, g))
}

// Active returns the active set of the last SetPoint.
func (b *Bounded) Active() []bool { return b.active }

func (b *Bounded) Dim() int { return b.Inner.Dim() }

func (b *Bounded) Reset() { b.Inner.Reset() }

func (b *Bounded) Matrix() mat.Matrix { return b.Inner.Matrix() }

// MulVecTo applies H to v restricted to the free variables.
func (b *Bounded) MulVecTo(dst, v []float64) {
	copy(b.s, v)
	b.mask(b.s)
	b.Inner.MulVecTo(dst, b.s)
	b.mask(dst)
}

// Update masks the active coordinates of s and y and delegates.
func (b *Bounded) Update(s, y []float64) Status {
	copy(b.s, s)
	copy(b.y, y)
	b.mask(b.s)
	b.mask(b.y)
	return b.Inner.Update(b.s, b.y)
}

func (b *Bounded) mask(v []float64) {
	for i, a := range b.active {
		if a {
			v[i] = 0
		}
	}
}
