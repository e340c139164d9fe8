// Package solver drives line-search minimization: it composes a direction
// strategy, a line search and optional box constraints into the iteration
// Init → Iterating → Converged | Failed.
package solver

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/direction"
	"github.com/copyleftdev/descent/internal/optimization/linesearch"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// Solver minimizes smooth objectives with fixed Settings.
//
// Minimize builds a fresh line search and direction strategy for every run,
// so one Solver may run concurrently unless Settings.Searcher or
// Settings.Strategy is set.
type Solver struct {
	settings Settings
	method   string
}

var _ optimization.Minimizer = (*Solver)(nil)

// New validates settings and returns a solver.
func New(settings Settings) (*Solver, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	settings = settings.withDefaults()
	return &Solver{settings: settings, method: settings.method()}, nil
}

// Settings returns the effective settings.
func (s *Solver) Settings() Settings { return s.settings }

// Method names the algorithm, for example "lbfgs+more_thuente".
func (s *Solver) Method() string { return s.method }

type phase int

const (
	phaseInit phase = iota
	phaseIterating
	phaseConverged
	phaseFailed
)

// run is the state of one Minimize call.
type run struct {
	settings Settings
	method   string
	bounds   *projection.Bounds
	oracle   *optimization.CountingOracle
	searcher linesearch.Searcher
	strategy direction.Strategy
	observer optimization.Observer

	phase       phase
	state       direction.State
	gradNorm    float64
	iterations  int
	termination optimization.Termination
	history     []optimization.IterationRecord
	err         *optimization.Error
}

// Minimize runs the solver from x0. The result is never nil; on failure it
// carries the last accepted iterate and the returned error is an
// *optimization.Error with the failure reason. Every run emits one
// EventStarted and then exactly one EventConverged or EventFailed.
func (s *Solver) Minimize(ctx context.Context, oracle optimization.Oracle, x0 []float64) (*optimization.Result, error) {
	r := &run{
		settings: s.settings,
		method:   s.method,
		bounds:   s.settings.Bounds,
		observer: s.settings.Observer,
	}
	r.state.X = append([]float64(nil), x0...)
	r.state.Eval = &optimization.Evaluation{Value: math.NaN()}
	r.gradNorm = math.NaN()
	r.emit(optimization.EventStarted, 0, "")

	if oracle == nil {
		r.fail(optimization.NewError(optimization.InvalidSettings, "oracle is required"))
		return r.result()
	}
	r.oracle = &optimization.CountingOracle{Oracle: oracle}

	if r.init() {
		r.phase = phaseIterating
		for r.phase == phaseIterating {
			r.iterate(ctx)
		}
	}
	return r.result()
}

// init validates the start point, projects it into the box and evaluates it.
// It reports whether iteration should start.
func (r *run) init() bool {
	x := r.state.X
	if len(x) == 0 {
		r.fail(optimization.NewError(optimization.InvalidSettings, "start point is empty"))
		return false
	}
	if err := r.bounds.Validate(); err != nil {
		r.fail(err)
		return false
	}
	if r.bounds != nil {
		if r.bounds.Dim() != len(x) {
			r.fail(optimization.NewErrorf(optimization.InvalidBounds,
				"bounds have %d entries, start point has %d", r.bounds.Dim(), len(x)))
			return false
		}
		r.bounds.ProjectTo(x, x)
	}

	eval, err := r.evaluate(x)
	if err != nil {
		r.fail(err)
		return false
	}
	r.state = direction.State{Iteration: 0, X: x, Eval: eval}
	r.gradNorm = r.gradientNorm(r.state)

	r.searcher = r.settings.newSearcher()
	strategy, err := r.settings.newStrategy(len(x))
	if err != nil {
		r.fail(err)
		return false
	}
	if err := strategy.Init(r.state); err != nil {
		r.fail(err)
		return false
	}
	r.strategy = strategy

	if r.converged(r.state) {
		r.finish(optimization.GradientTolerance)
		return false
	}
	return true
}

// iterate performs one accepted step or moves the run to a final phase.
func (r *run) iterate(ctx context.Context) {
	if r.iterations >= r.settings.MaxIterations {
		r.fail(optimization.NewErrorf(optimization.MaxIterationsExceeded,
			"no convergence after %d iterations", r.iterations))
		return
	}
	if err := ctx.Err(); err != nil {
		r.fail(optimization.WrapError(err, optimization.Cancelled, "run cancelled"))
		return
	}

	cur := r.state
	proposal, err := r.strategy.Direction(cur)
	if err != nil {
		r.fail(err)
		return
	}
	if proposal.Reset {
		r.emit(optimization.EventDirectionReset, 0, proposal.Detail)
	}
	d := proposal.Direction
	if floats.Norm(d, 2) == 0 {
		r.finish(optimization.StationaryDirection)
		return
	}

	req := linesearch.Request{
		X:           cur.X,
		Direction:   d,
		Value:       cur.Eval.Value,
		Gradient:    cur.Eval.Gradient,
		InitialStep: proposal.InitialStep,
	}
	if r.bounds != nil && !projectsTrials(r.searcher) {
		limit := r.bounds.MaxFeasibleStep(cur.X, d)
		if limit <= 0 {
			r.finish(optimization.StationaryDirection)
			return
		}
		if !math.IsInf(limit, 1) {
			req.MaxStep = limit
		}
	}

	out, err := r.searcher.Search(r.oracle, req)
	if err != nil {
		r.fail(err)
		return
	}

	x, eval := out.X, out.Eval
	if r.bounds != nil && !r.bounds.Contains(x) {
		x = r.bounds.Project(x)
		if eval, err = r.evaluate(x); err != nil {
			r.fail(err)
			return
		}
	}
	if !eval.Finite() {
		r.fail(optimization.NewError(optimization.NonFiniteValue, "objective is not finite at the accepted point"))
		return
	}

	r.iterations++
	next := direction.State{Iteration: r.iterations, X: x, Eval: eval}
	if status := r.strategy.Update(cur, next); status.Skipped() {
		r.emit(optimization.EventCurvatureSkipped, out.Step, status.String())
	}

	stepNorm := floats.Distance(cur.X, next.X, 2)
	r.state = next
	r.gradNorm = r.gradientNorm(next)
	r.history = append(r.history, optimization.IterationRecord{
		Iteration:    r.iterations,
		Point:        next.X,
		Value:        eval.Value,
		GradientNorm: r.gradNorm,
		Step:         out.Step,
		Evaluations:  r.oracle.Count,
	})
	r.emit(optimization.EventIteration, out.Step, "")

	switch {
	case r.converged(next):
		r.finish(optimization.GradientTolerance)
	case r.settings.StepTolerance > 0 && stepNorm < r.settings.StepTolerance:
		r.finish(optimization.StepTolerance)
	}
}

func projectsTrials(s linesearch.Searcher) bool {
	p, ok := s.(linesearch.Projecting)
	return ok && p.ProjectsTrials()
}

func (r *run) evaluate(x []float64) (*optimization.Evaluation, error) {
	eval, err := r.oracle.Evaluate(x)
	if err != nil {
		return nil, optimization.WrapError(err, optimization.EvaluationFailed, "oracle evaluation failed")
	}
	if eval == nil || len(eval.Gradient) != len(x) {
		return nil, optimization.NewError(optimization.EvaluationFailed, "oracle returned a malformed evaluation")
	}
	if !eval.Finite() {
		return nil, optimization.NewError(optimization.NonFiniteValue, "objective is not finite")
	}
	return eval, nil
}

// gradientNorm is the first-order optimality measure at s.
func (r *run) gradientNorm(s direction.State) float64 {
	return floats.Norm(projection.ProjectedGradient(r.bounds, s.X, s.Eval.Gradient), 2)
}

func (r *run) converged(s direction.State) bool {
	tol := r.settings.Tolerance
	if r.settings.Relative {
		tol *= math.Max(1, floats.Norm(s.X, 2))
	}
	return r.gradNorm <= tol
}

func (r *run) finish(t optimization.Termination) {
	r.phase = phaseConverged
	r.termination = t
	r.emit(optimization.EventConverged, 0, string(t))
}

func (r *run) fail(err error) {
	e, ok := err.(*optimization.Error)
	if !ok {
		e = optimization.WrapError(err, optimization.ReasonOf(err), "run failed")
		if e.Reason == optimization.ReasonNone {
			e.Reason = optimization.EvaluationFailed
		}
	}
	if e.Component == "" {
		e.WithComponent("solver")
	}
	if e.Op == "" {
		e.WithOperation("minimize")
	}
	e.WithIterate(r.iterations, r.state.X, r.state.Eval.Value)

	r.phase = phaseFailed
	r.err = e
	r.observer.Observe(optimization.Event{
		Kind:         optimization.EventFailed,
		Method:       r.method,
		Iteration:    r.iterations,
		Value:        r.state.Eval.Value,
		GradientNorm: r.gradNorm,
		Evaluations:  r.evaluations(),
		Reason:       e.Reason,
		Detail:       e.Error(),
	})
}

func (r *run) emit(kind optimization.EventKind, step float64, detail string) {
	r.observer.Observe(optimization.Event{
		Kind:         kind,
		Method:       r.method,
		Iteration:    r.iterations,
		Value:        r.state.Eval.Value,
		GradientNorm: r.gradNorm,
		Step:         step,
		Evaluations:  r.evaluations(),
		Detail:       detail,
	})
}

func (r *run) evaluations() int {
	if r.oracle == nil {
		return 0
	}
	return r.oracle.Count
}

func (r *run) result() (*optimization.Result, error) {
	res := &optimization.Result{
		Point:        r.state.X,
		Value:        r.state.Eval.Value,
		GradientNorm: r.gradNorm,
		Iterations:   r.iterations,
		Evaluations:  r.evaluations(),
		Termination:  r.termination,
		History:      r.history,
	}
	if r.phase == phaseFailed {
		res.FailureReason = r.err.Reason
		return res, r.err
	}
	res.Success = true
	return res, nil
}
