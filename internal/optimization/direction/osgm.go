package direction

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization/curvature"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

const (
	// DefaultOSGMRate is the AdaGrad learning rate of OSGM.
	DefaultOSGMRate = 0.1
	adagradEps      = 1e-20
)

// OSGM is the online scaled gradient method, d = -P·g. After every step the
// scaling P takes one AdaGrad step on a hypergradient of how well it did:
//
//	‖∇f(x₊)‖ / ‖∇f(x)‖   when the oracle provides a Hessian,
//	f(x₊) / ‖∇f(x)‖²     otherwise,
//
// with x₊ = x - αP·g. P is diagonal unless Full is set; diagonal entries are
// kept non-negative.
type OSGM struct {
	// Full learns a dense n×n P instead of a diagonal one.
	Full bool
	// Rate is the AdaGrad learning rate; zero means DefaultOSGMRate.
	Rate float64
	// Initial is the starting diagonal of P; zero means 1.
	Initial float64
	Bounds  *projection.Bounds

	p   []float64 // n diagonal entries, or n×n row-major
	acc []float64 // AdaGrad sums of squared hypergradients, same layout
	n   int
	d   []float64
	// reset is set when the last direction was the steepest-descent fallback.
	reset bool
}

func (o *OSGM) Name() string {
	if o.Full {
		return "osgm_full"
	}
	return "osgm"
}

func (o *OSGM) Init(s State) error {
	if o.Bounds != nil && o.Bounds.Dim() != len(s.X) {
		return dimensionError(o.Name(), o.Bounds.Dim(), len(s.X))
	}
	o.n = len(s.X)
	p0 := o.Initial
	if !(p0 > 0) {
		p0 = 1
	}
	size := o.n
	if o.Full {
		size = o.n * o.n
	}
	o.p, o.acc = make([]float64, size), make([]float64, size)
	for i := 0; i < o.n; i++ {
		o.p[o.index(i, i)] = p0
	}
	o.d, o.reset = nil, false
	return nil
}

func (o *OSGM) index(i, j int) int {
	if o.Full {
		return i*o.n + j
	}
	return i
}

// Scaling returns a copy of P.
func (o *OSGM) Scaling() mat.Matrix {
	if o.Full {
		return mat.NewDense(o.n, o.n, append([]float64(nil), o.p...))
	}
	return mat.NewDiagDense(o.n, append([]float64(nil), o.p...))
}

func (o *OSGM) Direction(s State) (*Proposal, error) {
	v := make([]float64, o.n)
	g := s.Eval.Gradient
	if o.Full {
		mat.NewVecDense(o.n, v).MulVec(mat.NewDense(o.n, o.n, o.p), mat.NewVecDense(o.n, g))
	} else {
		floats.MulTo(v, o.p, g)
	}
	floats.Scale(-1, v)
	p := ensureDescent(o.Bounds, s, &Proposal{Direction: feasible(o.Bounds, s.X, v)})
	o.d, o.reset = p.Direction, p.Reset
	return p, nil
}

func (o *OSGM) Update(prev, next State) curvature.Status {
	if o.reset {
		return curvature.NoUpdate
	}
	g, gNext := prev.Eval.Gradient, next.Eval.Gradient
	gNorm := floats.Norm(g, 2)
	dd := floats.Dot(o.d, o.d)
	if gNorm == 0 || dd == 0 {
		return curvature.SkippedSmallStep
	}
	s := make([]float64, o.n)
	floats.SubTo(s, next.X, prev.X)
	// x₊ = x + αd, so the step length along d scales the hypergradient.
	alpha := floats.Dot(s, o.d) / dd

	// u holds ∂/∂x₊ of the surrogate, so that ∂/∂P_ij = -α·u_i·g_j.
	var u []float64
	if h := next.Eval.Hessian; h != nil {
		nextNorm := floats.Norm(gNext, 2)
		if nextNorm == 0 {
			return curvature.SkippedSmallStep
		}
		hg := mat.NewVecDense(o.n, nil)
		hg.MulVec(h, mat.NewVecDense(o.n, gNext))
		u = hg.RawVector().Data
		floats.Scale(1/(gNorm*nextNorm), u)
	} else {
		u = append([]float64(nil), gNext...)
		floats.Scale(1/(gNorm*gNorm), u)
	}

	for i := 0; i < o.n; i++ {
		if !o.Full {
			o.step(i, -alpha*u[i]*g[i])
			o.p[i] = math.Max(o.p[i], 0)
			continue
		}
		for j := 0; j < o.n; j++ {
			o.step(o.index(i, j), -alpha*u[i]*g[j])
		}
	}
	return curvature.Applied
}

// step applies one AdaGrad step with hypergradient gr to entry k of P.
func (o *OSGM) step(k int, gr float64) {
	if math.IsNaN(gr) || math.IsInf(gr, 0) {
		return
	}
	rate := o.Rate
	if !(rate > 0) {
		rate = DefaultOSGMRate
	}
	o.acc[k] += gr * gr
	o.p[k] -= rate * gr / math.Sqrt(o.acc[k]+adagradEps)
}
