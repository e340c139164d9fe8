package curvature

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultMemory is the number of pairs kept by NewLBFGS when m ≤ 0.
const DefaultMemory = 10

// LBFGS stores the last m pairs in a ring buffer and applies H by the
// two-loop recursion with H₀ = γI, γ = sᵗy/yᵗy of the newest pair.
type LBFGS struct {
	n, m  int
	s, y  [][]float64
	rho   []float64
	alpha []float64
	// head is the slot of the oldest pair; count the number of stored pairs.
	head, count int
	opts        Options
}

// NewLBFGS returns an empty limited-memory approximation for n variables.
func NewLBFGS(n, m int, opts Options) (*LBFGS, error) {
	if n <= 0 {
		return nil, fmt.Errorf("curvature: dimension must be positive, got %d", n)
	}
	if m <= 0 {
		m = DefaultMemory
	}
	l := &LBFGS{
		n:     n,
		m:     m,
		s:     make([][]float64, m),
		y:     make([][]float64, m),
		rho:   make([]float64, m),
		alpha: make([]float64, m),
		opts:  opts.withDefaults(),
	}
	for i := 0; i < m; i++ {
		l.s[i] = make([]float64, n)
		l.y[i] = make([]float64, n)
	}
	return l, nil
}

func (l *LBFGS) Dim() int { return l.n }

// Len returns the number of stored pairs.
func (l *LBFGS) Len() int { return l.count }

// Capacity returns m.
func (l *LBFGS) Capacity() int { return l.m }

// Reset drops every stored pair.
func (l *LBFGS) Reset() {
	l.head, l.count = 0, 0
}

// slot returns the buffer index of the i-th oldest pair.
func (l *LBFGS) slot(i int) int {
	return (l.head + i) % l.m
}

// Update stores (s, y), evicting the oldest pair when the buffer is full.
func (l *LBFGS) Update(s, y []float64) Status {
	sy, status := l.opts.check(s, y)
	if status != Applied {
		return status
	}
	var k int
	if l.count < l.m {
		k = l.slot(l.count)
		l.count++
	} else {
		k = l.head
		l.head = (l.head + 1) % l.m
	}
	copy(l.s[k], s)
	copy(l.y[k], y)
	l.rho[k] = 1 / sy
	return Applied
}

// Scale returns γ used for H₀, or 1 with no stored pairs.
func (l *LBFGS) Scale() float64 {
	if l.count == 0 {
		return 1
	}
	k := l.slot(l.count - 1)
	return 1 / (l.rho[k] * floats.Dot(l.y[k], l.y[k]))
}

// MulVecTo computes H·v with the two-loop recursion.
func (l *LBFGS) MulVecTo(dst, v []float64) {
	if len(dst) != l.n || len(v) != l.n {
		panic("curvature: dimension mismatch")
	}
	copy(dst, v)
	for i := l.count - 1; i >= 0; i-- {
		k := l.slot(i)
		l.alpha[k] = l.rho[k] * floats.Dot(l.s[k], dst)
		floats.AddScaled(dst, -l.alpha[k], l.y[k])
	}
	floats.Scale(l.Scale(), dst)
	for i := 0; i < l.count; i++ {
		k := l.slot(i)
		beta := l.rho[k] * floats.Dot(l.y[k], dst)
		floats.AddScaled(dst, l.alpha[k]-beta, l.s[k])
	}
}

// Matrix forms H column by column. It is meant for inspection and tests.
func (l *LBFGS) Matrix() mat.Matrix {
	h := mat.NewSymDense(l.n, nil)
	e := make([]float64, l.n)
	col := make([]float64, l.n)
	for j := 0; j < l.n; j++ {
		e[j] = 1
		l.MulVecTo(col, e)
		e[j] = 0
		for i := 0; i <= j; i++ {
			h.SetSym(i, j, col[i])
		}
	}
	return h
}
