package linesearch

import (
	"math"

	"github.com/copyleftdev/descent/internal/optimization"
)

const (
	// DefaultWindow is the number of past values the nonmonotone search compares against.
	DefaultWindow = 10

	safeguardLower = 0.1
	safeguardUpper = 0.9
)

// Nonmonotone is the Grippo-Lampariello-Lucidi search. A step is accepted when
//
//	f(x+αd) ≤ max(f over the last Window iterates) + C1·α·gᵗd
//
// Rejected steps are replaced by the minimizer of the quadratic interpolating
// f(x), gᵗd and f(x+αd) when it falls inside (0.1, 0.9·α), and halved
// otherwise. A Window of 1 is monotone Armijo with quadratic backtracking.
//
// The search keeps the window across calls; call Reset before reusing it for
// another run.
type Nonmonotone struct {
	C1        float64
	Window    int
	MinStep   float64
	MaxTrials int

	history []float64
}

// NewNonmonotone returns a GLL search with a window of the given size.
func NewNonmonotone(window int) *Nonmonotone {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Nonmonotone{
		C1:        DefaultC1,
		Window:    window,
		MinStep:   DefaultMinStep,
		MaxTrials: DefaultMaxTrials,
	}
}

// Name implements Searcher.
func (*Nonmonotone) Name() string { return "nonmonotone" }

// Reset clears the window of past values.
func (nm *Nonmonotone) Reset() {
	nm.history = nm.history[:0]
}

// reference records f0 and returns the largest value in the window.
func (nm *Nonmonotone) reference(f0 float64) float64 {
	window := nm.Window
	if window <= 0 {
		window = DefaultWindow
	}
	nm.history = append(nm.history, f0)
	if over := len(nm.history) - window; over > 0 {
		nm.history = append(nm.history[:0], nm.history[over:]...)
	}
	ref := math.Inf(-1)
	for _, v := range nm.history {
		ref = math.Max(ref, v)
	}
	return ref
}

// Search implements Searcher.
func (nm *Nonmonotone) Search(oracle optimization.Oracle, req Request) (*Outcome, error) {
	const component = "nonmonotone"

	gd, err := directionalDerivative(component, req)
	if err != nil {
		return nil, err
	}
	c1, minStep, maxTrials := nm.C1, nm.MinStep, nm.MaxTrials
	if c1 <= 0 || c1 >= 1 {
		c1 = DefaultC1
	}
	if minStep <= 0 {
		minStep = DefaultMinStep
	}
	if maxTrials <= 0 {
		maxTrials = DefaultMaxTrials
	}

	ref := nm.reference(req.Value)
	t := initialStep(req)
	for n := 1; n <= maxTrials; n++ {
		if t < minStep {
			return nil, failure(component, "step %g fell below the minimum %g", t, minStep)
		}
		x, eval, err := trial(oracle, req, t)
		if err != nil {
			return nil, err
		}
		if eval.Finite() && eval.Value <= ref+c1*t*gd {
			return &Outcome{Step: t, X: x, Eval: eval, Evaluations: n, Status: status(req, t)}, nil
		}
		t = nextTrial(t, req.Value, gd, eval.Value)
	}
	return nil, failure(component, "no nonmonotone decrease after %d trials", maxTrials)
}

// nextTrial returns the safeguarded quadratic interpolation step.
func nextTrial(t, f0, gd, ft float64) float64 {
	if t <= safeguardLower || !finite(ft) {
		return t / 2
	}
	q := -0.5 * t * t * gd / (ft - f0 - t*gd)
	if q > safeguardLower && q < safeguardUpper*t {
		return q
	}
	return t / 2
}
