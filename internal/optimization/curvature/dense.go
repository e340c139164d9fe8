package curvature

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// symmetricRule applies one update to h given s, y, yᵗs and H·y.
type symmetricRule func(h *mat.SymDense, s, y, hy *mat.VecDense, sy float64, opts Options) Status

// symmetric is a dense inverse Hessian approximation stored as a SymDense.
type symmetric struct {
	h    *mat.SymDense
	opts Options
	rule symmetricRule
	ws   *Workspace
}

func newSymmetric(n int, opts Options, rule symmetricRule) *symmetric {
	a := &symmetric{
		h:    mat.NewSymDense(n, nil),
		opts: opts,
		rule: rule,
		ws:   NewWorkspace(),
	}
	a.Reset()
	return a
}

func (a *symmetric) Dim() int { return a.h.SymmetricDim() }

func (a *symmetric) Reset() {
	n := a.Dim()
	a.h.Zero()
	for i := 0; i < n; i++ {
		a.h.SetSym(i, i, 1)
	}
}

func (a *symmetric) MulVecTo(dst, v []float64) {
	in := a.ws.load(v)
	out := mat.NewVecDense(len(dst), dst)
	out.MulVec(a.h, in)
	a.ws.PutVecDense(in)
}

func (a *symmetric) Matrix() mat.Matrix {
	c := mat.NewSymDense(a.Dim(), nil)
	c.CopySym(a.h)
	return c
}

func (a *symmetric) Update(s, y []float64) Status {
	sy, status := a.opts.check(s, y)
	if status != Applied {
		return status
	}
	sv, yv := a.ws.load(s), a.ws.load(y)
	hy := a.ws.GetVecDense(len(y))
	defer a.ws.PutVecDense(sv, yv, hy)

	hy.MulVec(a.h, yv)
	return a.rule(a.h, sv, yv, hy, sy, a.opts)
}

// bfgsUpdate is H' = H - ρ(s(Hy)ᵗ + (Hy)sᵗ) + (ρ²·yᵗHy + ρ)ssᵗ with ρ = 1/yᵗs.
func bfgsUpdate(h *mat.SymDense, s, y, hy *mat.VecDense, sy float64, _ Options) Status {
	rho := 1 / sy
	yhy := mat.Dot(y, hy)
	h.RankTwo(h, -rho, s, hy)
	h.SymRankOne(h, rho*rho*yhy+rho, s)
	return Applied
}

// dfpUpdate is H' = H - (Hy)(Hy)ᵗ/yᵗHy + ssᵗ/yᵗs.
func dfpUpdate(h *mat.SymDense, s, y, hy *mat.VecDense, sy float64, opts Options) Status {
	yhy := mat.Dot(y, hy)
	if yhy <= opts.CurvatureTol*mat.Norm(y, 2)*mat.Norm(hy, 2) {
		return SkippedDenominator
	}
	h.SymRankOne(h, -1/yhy, hy)
	h.SymRankOne(h, 1/sy, s)
	return Applied
}

// sr1Update is H' = H + vvᵗ/vᵗy with v = s - Hy.
func sr1Update(h *mat.SymDense, s, y, hy *mat.VecDense, _ float64, opts Options) Status {
	var v mat.VecDense
	v.SubVec(s, hy)
	den := mat.Dot(&v, y)
	if math.Abs(den) < opts.SR1Tol*mat.Norm(y, 2)*mat.Norm(&v, 2) || den == 0 {
		return SkippedDenominator
	}
	h.SymRankOne(h, 1/den, &v)
	return Applied
}

// broyden is Broyden's "good" rank-one update of the inverse,
// H' = H + (s - Hy)sᵗH / sᵗHy. H is not kept symmetric.
type broyden struct {
	h    *mat.Dense
	opts Options
	ws   *Workspace
}

func newBroyden(n int, opts Options) *broyden {
	a := &broyden{h: mat.NewDense(n, n, nil), opts: opts, ws: NewWorkspace()}
	a.Reset()
	return a
}

func (a *broyden) Dim() int {
	n, _ := a.h.Dims()
	return n
}

func (a *broyden) Reset() {
	a.h.Zero()
	for i := 0; i < a.Dim(); i++ {
		a.h.Set(i, i, 1)
	}
}

func (a *broyden) MulVecTo(dst, v []float64) {
	in := a.ws.load(v)
	out := mat.NewVecDense(len(dst), dst)
	out.MulVec(a.h, in)
	a.ws.PutVecDense(in)
}

func (a *broyden) Matrix() mat.Matrix {
	return mat.DenseCopyOf(a.h)
}

func (a *broyden) Update(s, y []float64) Status {
	if _, status := a.opts.check(s, y); status != Applied {
		return status
	}
	n := len(s)
	sv, yv := a.ws.load(s), a.ws.load(y)
	hy, hts, u := a.ws.GetVecDense(n), a.ws.GetVecDense(n), a.ws.GetVecDense(n)
	defer a.ws.PutVecDense(sv, yv, hy, hts, u)

	hy.MulVec(a.h, yv)
	den := mat.Dot(sv, hy)
	if math.Abs(den) <= a.opts.CurvatureTol*floats.Norm(s, 2)*mat.Norm(hy, 2) {
		return SkippedDenominator
	}
	hts.MulVec(a.h.T(), sv)
	u.SubVec(sv, hy)
	a.h.RankOne(a.h, 1/den, u, hts)
	return Applied
}
