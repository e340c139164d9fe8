package linesearch

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization"
)

const (
	bisectShrink = 0.66
	extrapLower  = 1.1
	extrapUpper  = 4.0
	// unboundedStep is the step cap used when a request carries none.
	unboundedStep = 1e10
)

// MoreThuente is the Moré-Thuente line search. It returns a step satisfying
// the strong Wolfe conditions
//
//	f(x+αd) ≤ f(x) + C1·α·gᵗd
//	|∇f(x+αd)ᵗd| ≤ C2·|gᵗd|
//
// by keeping a bracket around an acceptable step and choosing trials with
// safeguarded cubic, quadratic and secant interpolation.
type MoreThuente struct {
	C1        float64
	C2        float64
	XTol      float64
	MinStep   float64
	MaxTrials int
}

// NewMoreThuente returns a Moré-Thuente search with the usual tolerances.
func NewMoreThuente() *MoreThuente {
	return &MoreThuente{
		C1:        DefaultC1,
		C2:        DefaultC2,
		XTol:      epsilon,
		MaxTrials: DefaultMaxTrials,
	}
}

var epsilon = math.Nextafter(1, 2) - 1

// Name implements Searcher.
func (*MoreThuente) Name() string { return "more_thuente" }

// bracket is the interval of uncertainty. stx holds the step with the lowest
// value seen so far; sty is the other endpoint.
type bracket struct {
	stx, fx, gx float64
	sty, fy, gy float64
	bracketed   bool
	lo, hi      float64
}

// Search implements Searcher.
func (m *MoreThuente) Search(oracle optimization.Oracle, req Request) (*Outcome, error) {
	const component = "more_thuente"

	g0, err := directionalDerivative(component, req)
	if err != nil {
		return nil, err
	}

	c1, c2, xtol, maxTrials := m.C1, m.C2, m.XTol, m.MaxTrials
	if c1 <= 0 {
		c1 = DefaultC1
	}
	if c2 <= 0 {
		c2 = DefaultC2
	}
	if xtol <= 0 {
		xtol = epsilon
	}
	if maxTrials <= 0 {
		maxTrials = DefaultMaxTrials
	}
	if !(c1 < c2 && c2 < 1) {
		return nil, optimization.NewErrorf(optimization.InvalidSettings,
			"tolerances must satisfy 0 < c1 < c2 < 1, got c1=%g c2=%g", c1, c2).
			WithComponent(component).WithOperation("search")
	}

	minStep := math.Max(m.MinStep, 0)
	maxStep := unboundedStep
	if req.MaxStep > 0 {
		maxStep = req.MaxStep
	}
	stp := initialStep(req)
	if stp > maxStep {
		stp = maxStep
	}
	if stp < minStep {
		stp = minStep
	}

	f0 := req.Value
	gtest := c1 * g0
	width := maxStep - minStep
	prevWidth := 2 * width
	armijoStage := true

	br := bracket{
		stx: 0, fx: f0, gx: g0,
		sty: 0, fy: f0, gy: g0,
		lo: 0, hi: stp + extrapUpper*stp,
	}

	for n := 1; n <= maxTrials; n++ {
		x, eval, err := trial(oracle, req, stp)
		if err != nil {
			return nil, err
		}
		if !eval.Finite() {
			// Step back toward the best point and forbid extrapolating past
			// the failed trial.
			if !br.bracketed {
				br.hi = stp
			}
			stp = br.stx + 0.5*(stp-br.stx)
			continue
		}
		f := eval.Value
		g := floats.Dot(eval.Gradient, req.Direction)
		ftest := f0 + stp*gtest

		switch {
		case br.bracketed && (stp <= br.lo || stp >= br.hi):
			return nil, failure(component, "rounding errors prevent further progress at step %g", stp)
		case br.bracketed && br.hi-br.lo <= xtol*br.hi:
			return nil, failure(component, "bracket [%g, %g] is narrower than the step tolerance", br.lo, br.hi)
		case stp == maxStep && f <= ftest && g <= gtest:
			return &Outcome{Step: stp, X: x, Eval: eval, Evaluations: n, Status: StatusMaxStep}, nil
		case stp == minStep && (f > ftest || g >= gtest):
			return nil, failure(component, "step reached the lower limit %g", minStep)
		case f <= ftest && math.Abs(g) <= c2*(-g0):
			return &Outcome{Step: stp, X: x, Eval: eval, Evaluations: n, Status: StatusConverged}, nil
		}

		if armijoStage && f <= ftest && g >= 0 {
			armijoStage = false
		}

		// Until sufficient decrease with a non-negative derivative is seen,
		// work with the modified function ψ(α) = f(α) - f0 - c1·α·g0.
		if armijoStage && f <= br.fx && f > ftest {
			mod := bracket{
				stx: br.stx, fx: br.fx - br.stx*gtest, gx: br.gx - gtest,
				sty: br.sty, fy: br.fy - br.sty*gtest, gy: br.gy - gtest,
				bracketed: br.bracketed, lo: br.lo, hi: br.hi,
			}
			stp = mod.step(stp, f-stp*gtest, g-gtest)
			br.stx, br.fx, br.gx = mod.stx, mod.fx+mod.stx*gtest, mod.gx+gtest
			br.sty, br.fy, br.gy = mod.sty, mod.fy+mod.sty*gtest, mod.gy+gtest
			br.bracketed = mod.bracketed
		} else {
			stp = br.step(stp, f, g)
		}

		if br.bracketed {
			if math.Abs(br.sty-br.stx) >= bisectShrink*prevWidth {
				stp = br.stx + 0.5*(br.sty-br.stx)
			}
			prevWidth = width
			width = math.Abs(br.sty - br.stx)
			br.lo = math.Min(br.stx, br.sty)
			br.hi = math.Max(br.stx, br.sty)
		} else {
			br.lo = stp + extrapLower*(stp-br.stx)
			br.hi = stp + extrapUpper*(stp-br.stx)
		}

		stp = math.Max(minStep, math.Min(stp, maxStep))
		if br.bracketed && (stp <= br.lo || stp >= br.hi || br.hi-br.lo <= xtol*br.hi) {
			stp = br.stx
		}
	}
	return nil, failure(component, "no strong Wolfe step after %d trials", maxTrials)
}

// step computes the next safeguarded trial from the current trial (stp, fp, dp)
// and updates the bracket endpoints.
func (b *bracket) step(stp, fp, dp float64) float64 {
	sgnd := dp * (b.gx / math.Abs(b.gx))
	var next float64

	switch {
	case fp > b.fx:
		// Higher value: the minimum is bracketed. Take the cubic step when it
		// is closer to stx, otherwise the midpoint of cubic and quadratic.
		theta := 3*(b.fx-fp)/(stp-b.stx) + b.gx + dp
		s := math.Max(math.Abs(theta), math.Max(math.Abs(b.gx), math.Abs(dp)))
		gamma := s * math.Sqrt((theta/s)*(theta/s)-(b.gx/s)*(dp/s))
		if stp < b.stx {
			gamma = -gamma
		}
		p := (gamma - b.gx) + theta
		q := ((gamma - b.gx) + gamma) + dp
		cubic := b.stx + (p/q)*(stp-b.stx)
		quad := b.stx + ((b.gx/((b.fx-fp)/(stp-b.stx)+b.gx))/2)*(stp-b.stx)
		if math.Abs(cubic-b.stx) < math.Abs(quad-b.stx) {
			next = cubic
		} else {
			next = cubic + (quad-cubic)/2
		}
		b.bracketed = true

	case sgnd < 0:
		// Lower value and derivatives of opposite sign: bracketed.
		theta := 3*(b.fx-fp)/(stp-b.stx) + b.gx + dp
		s := math.Max(math.Abs(theta), math.Max(math.Abs(b.gx), math.Abs(dp)))
		gamma := s * math.Sqrt((theta/s)*(theta/s)-(b.gx/s)*(dp/s))
		if stp > b.stx {
			gamma = -gamma
		}
		p := (gamma - dp) + theta
		q := ((gamma - dp) + gamma) + b.gx
		cubic := stp + (p/q)*(b.stx-stp)
		secant := stp + (dp/(dp-b.gx))*(b.stx-stp)
		if math.Abs(cubic-stp) > math.Abs(secant-stp) {
			next = cubic
		} else {
			next = secant
		}
		b.bracketed = true

	case math.Abs(dp) < math.Abs(b.gx):
		// Lower value, same sign, decreasing derivative magnitude.
		theta := 3*(b.fx-fp)/(stp-b.stx) + b.gx + dp
		s := math.Max(math.Abs(theta), math.Max(math.Abs(b.gx), math.Abs(dp)))
		gamma := s * math.Sqrt(math.Max(0, (theta/s)*(theta/s)-(b.gx/s)*(dp/s)))
		if stp > b.stx {
			gamma = -gamma
		}
		p := (gamma - dp) + theta
		q := (gamma + (b.gx - dp)) + gamma
		r := p / q
		var cubic float64
		switch {
		case r < 0 && gamma != 0:
			cubic = stp + r*(b.stx-stp)
		case stp > b.stx:
			cubic = b.hi
		default:
			cubic = b.lo
		}
		secant := stp + (dp/(dp-b.gx))*(b.stx-stp)
		if b.bracketed {
			if math.Abs(cubic-stp) < math.Abs(secant-stp) {
				next = cubic
			} else {
				next = secant
			}
			if stp > b.stx {
				next = math.Min(stp+bisectShrink*(b.sty-stp), next)
			} else {
				next = math.Max(stp+bisectShrink*(b.sty-stp), next)
			}
		} else {
			if math.Abs(cubic-stp) > math.Abs(secant-stp) {
				next = cubic
			} else {
				next = secant
			}
			next = math.Max(b.lo, math.Min(b.hi, next))
		}

	default:
		// Lower value, same sign, non-decreasing derivative magnitude.
		switch {
		case b.bracketed:
			theta := 3*(fp-b.fy)/(b.sty-stp) + b.gy + dp
			s := math.Max(math.Abs(theta), math.Max(math.Abs(b.gy), math.Abs(dp)))
			gamma := s * math.Sqrt((theta/s)*(theta/s)-(b.gy/s)*(dp/s))
			if stp > b.sty {
				gamma = -gamma
			}
			p := (gamma - dp) + theta
			q := ((gamma - dp) + gamma) + b.gy
			next = stp + (p/q)*(b.sty-stp)
		case stp > b.stx:
			next = b.hi
		default:
			next = b.lo
		}
	}

	if fp > b.fx {
		b.sty, b.fy, b.gy = stp, fp, dp
	} else {
		if sgnd < 0 {
			b.sty, b.fy, b.gy = b.stx, b.fx, b.gx
		}
		b.stx, b.fx, b.gx = stp, fp, dp
	}
	return next
}
