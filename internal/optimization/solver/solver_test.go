package solver

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/optimize/functions"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/curvature"
	"github.com/copyleftdev/descent/internal/optimization/direction"
	"github.com/copyleftdev/descent/internal/optimization/linesearch"
	"github.com/copyleftdev/descent/internal/optimization/optimtest"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// exactSearch minimizes a quadratic exactly along d: α = -gᵗd / dᵗAd, with
// dᵗAd recovered from the gradient at x + d.
type exactSearch struct{}

func (exactSearch) Name() string { return "exact" }

func (exactSearch) Search(oracle optimization.Oracle, req linesearch.Request) (*linesearch.Outcome, error) {
	n := len(req.X)
	probe := make([]float64, n)
	floats.AddTo(probe, req.X, req.Direction)
	at, err := oracle.Evaluate(probe)
	if err != nil {
		return nil, err
	}
	dg := make([]float64, n)
	floats.SubTo(dg, at.Gradient, req.Gradient)
	step := -floats.Dot(req.Gradient, req.Direction) / floats.Dot(dg, req.Direction)

	x := make([]float64, n)
	floats.AddScaledTo(x, req.X, step, req.Direction)
	eval, err := oracle.Evaluate(x)
	if err != nil {
		return nil, err
	}
	return &linesearch.Outcome{Step: step, X: x, Eval: eval, Evaluations: 2}, nil
}

func solve(t *testing.T, settings Settings, oracle optimization.Oracle, x0 []float64) *optimization.Result {
	t.Helper()
	s, err := New(settings)
	require.NoError(t, err)
	res, err := s.Minimize(context.Background(), oracle, x0)
	require.NoError(t, err, s.Method())
	require.NotNil(t, res)
	require.True(t, res.Success)
	return res
}

func TestGradientDescentQuadratic(t *testing.T) {
	settings := DefaultSettings()
	settings.Direction = DirectionGradient
	settings.LineSearch = LineSearchBacktracking
	settings.Tolerance = 1e-6
	settings.MaxIterations = 100

	res := solve(t, settings, optimtest.Shifted([]float64{1, 2}, []float64{0, 0}), []float64{2, 1})

	optimtest.AssertFloat64SlicesEqual(t, res.Point, []float64{0, 0}, 1e-6)
	assert.InDelta(t, 0, res.Value, 1e-10)
	assert.LessOrEqual(t, res.GradientNorm, 1e-6)
	assert.Equal(t, optimization.GradientTolerance, res.Termination)
	assert.Len(t, res.History, res.Iterations)
}

func TestProjectedGradientBox(t *testing.T) {
	bounds, err := projection.Uniform(2, 0, 1)
	require.NoError(t, err)

	for _, ls := range []LineSearchKind{LineSearchBacktracking, LineSearchMoreThuente, LineSearchNonmonotone} {
		t.Run(ls.String(), func(t *testing.T) {
			settings := DefaultSettings()
			settings.Direction = DirectionGradient
			settings.LineSearch = ls
			settings.Bounds = bounds

			res := solve(t, settings, optimtest.Shifted([]float64{1, 1}, []float64{2, 3}), []float64{0, 0})
			optimtest.AssertFloat64SlicesEqual(t, res.Point, []float64{1, 1}, 1e-12)
			assert.InDelta(t, 5, res.Value, 1e-12)
			assert.Equal(t, 0.0, res.GradientNorm)
		})
	}
}

func TestQuasiNewtonFiniteTermination(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const n = 4
	a := optimtest.RandomSPD(rng, n)
	quad := &optimtest.Quadratic{A: a, B: optimtest.RandomVector(rng, n, -1, 1)}

	for _, kind := range []CurvatureKind{CurvatureBFGS, CurvatureDFP} {
		t.Run(kind.String(), func(t *testing.T) {
			settings := DefaultSettings()
			settings.Curvature = kind
			settings.Searcher = exactSearch{}
			settings.Tolerance = 1e-8
			settings.MaxIterations = n

			res := solve(t, settings, quad, optimtest.RandomVector(rng, n, -3, 3))
			assert.LessOrEqual(t, res.Iterations, n)
			optimtest.AssertFloat64SlicesEqual(t, res.Point, quad.Minimizer(), 1e-7)
		})
	}
}

func TestMethodsOnQuadratic(t *testing.T) {
	quad := optimtest.NewQuadratic(2, []float64{3, 1, 1, 2}, []float64{1, -1})
	want := quad.Minimizer()

	tests := []struct {
		name string
		dir  DirectionKind
		curv CurvatureKind
		ls   LineSearchKind
	}{
		{name: "gradient backtracking", dir: DirectionGradient, ls: LineSearchBacktracking},
		{name: "gradient fixed", dir: DirectionGradient, ls: LineSearchFixed},
		{name: "coordinate", dir: DirectionCoordinate, ls: LineSearchBacktracking},
		{name: "pnorm", dir: DirectionPNorm, ls: LineSearchBacktracking},
		{name: "newton", dir: DirectionNewton, ls: LineSearchBacktracking},
		{name: "bfgs", dir: DirectionQuasiNewton, curv: CurvatureBFGS, ls: LineSearchMoreThuente},
		{name: "dfp", dir: DirectionQuasiNewton, curv: CurvatureDFP, ls: LineSearchMoreThuente},
		{name: "broyden", dir: DirectionQuasiNewton, curv: CurvatureBroyden, ls: LineSearchMoreThuente},
		{name: "sr1", dir: DirectionQuasiNewton, curv: CurvatureSR1, ls: LineSearchBacktracking},
		{name: "lbfgs", dir: DirectionQuasiNewton, curv: CurvatureLBFGS, ls: LineSearchMoreThuente},
		{name: "spectral", dir: DirectionSpectral, ls: LineSearchNonmonotone},
		{name: "osgm", dir: DirectionOSGM, ls: LineSearchBacktracking},
		{name: "osgm full", dir: DirectionOSGMFull, ls: LineSearchBacktracking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			settings.Direction = tt.dir
			settings.Curvature = tt.curv
			settings.LineSearch = tt.ls
			settings.FixedStep = 0.2
			settings.Preconditioner = []float64{3, 0, 0, 2}

			res := solve(t, settings, quad, []float64{4, -4})
			optimtest.AssertFloat64SlicesEqual(t, res.Point, want, 1e-5)
		})
	}
}

func TestRosenbrock(t *testing.T) {
	tests := []struct {
		name string
		curv CurvatureKind
		ls   LineSearchKind
	}{
		{name: "bfgs more-thuente", curv: CurvatureBFGS, ls: LineSearchMoreThuente},
		{name: "lbfgs more-thuente", curv: CurvatureLBFGS, ls: LineSearchMoreThuente},
		{name: "bfgs backtracking", curv: CurvatureBFGS, ls: LineSearchBacktracking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			settings.Curvature = tt.curv
			settings.LineSearch = tt.ls
			settings.MaxIterations = 2000

			res := solve(t, settings, optimtest.Rosenbrock, []float64{-1.2, 1})
			optimtest.AssertFloat64SlicesEqual(t, res.Point, []float64{1, 1}, 1e-4)
			assert.Less(t, res.Value, 1e-8)
		})
	}
}

func TestGonumProblem(t *testing.T) {
	fn := functions.ExtendedRosenbrock{}
	oracle, err := optimization.FromProblem(optimize.Problem{Func: fn.Func, Grad: fn.Grad})
	require.NoError(t, err)

	settings := DefaultSettings()
	settings.Curvature = CurvatureLBFGS
	res := solve(t, settings, oracle, []float64{-1.2, 1})
	optimtest.AssertFloat64SlicesEqual(t, res.Point, []float64{1, 1}, 1e-4)
}

func TestBoundedMethods(t *testing.T) {
	// Unconstrained minimizer (2, -3); in [-1, 1]² the solution is (1, -1).
	quad := optimtest.NewQuadratic(2, []float64{2, 0, 0, 20}, []float64{4, -60})
	bounds, err := projection.Uniform(2, -1, 1)
	require.NoError(t, err)

	tests := []struct {
		name string
		dir  DirectionKind
		curv CurvatureKind
		ls   LineSearchKind
	}{
		{name: "projected gradient", dir: DirectionGradient, ls: LineSearchBacktracking},
		{name: "spectral gll", dir: DirectionSpectral, ls: LineSearchNonmonotone},
		{name: "projected newton", dir: DirectionNewton, ls: LineSearchBacktracking},
		{name: "bfgs-b", dir: DirectionQuasiNewton, curv: CurvatureBFGS, ls: LineSearchMoreThuente},
		{name: "lbfgs-b", dir: DirectionQuasiNewton, curv: CurvatureLBFGS, ls: LineSearchMoreThuente},
		{name: "coordinate", dir: DirectionCoordinate, ls: LineSearchBacktracking},
		{name: "gradient projected arc", dir: DirectionGradient, ls: LineSearchProjected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			settings.Direction = tt.dir
			settings.Curvature = tt.curv
			settings.LineSearch = tt.ls
			settings.Bounds = bounds

			res := solve(t, settings, quad, []float64{0, 0})
			optimtest.AssertFloat64SlicesEqual(t, res.Point, []float64{1, -1}, 1e-8)
			for _, rec := range res.History {
				assert.True(t, bounds.Contains(rec.Point), "iterate %d left the box", rec.Iteration)
			}
		})
	}
}

func TestStartPointIsProjected(t *testing.T) {
	bounds, err := projection.Uniform(2, 0, 1)
	require.NoError(t, err)
	settings := DefaultSettings()
	settings.Direction = DirectionGradient
	settings.Bounds = bounds

	x0 := []float64{5, -5}
	res := solve(t, settings, optimtest.Shifted([]float64{1, 1}, []float64{0.5, 0.5}), x0)
	assert.Equal(t, []float64{5, -5}, x0, "start point must not be modified")
	optimtest.AssertFloat64SlicesEqual(t, res.Point, []float64{0.5, 0.5}, 1e-6)
}

func TestConvergedAtStart(t *testing.T) {
	var kinds []optimization.EventKind
	settings := DefaultSettings()
	settings.Observer = optimization.ObserverFunc(func(e optimization.Event) { kinds = append(kinds, e.Kind) })

	res := solve(t, settings, optimtest.Shifted([]float64{1}, []float64{3}), []float64{3})
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, 1, res.Evaluations)
	assert.Equal(t, []optimization.EventKind{optimization.EventStarted, optimization.EventConverged}, kinds)
}

func TestStepTolerance(t *testing.T) {
	settings := DefaultSettings()
	settings.Direction = DirectionGradient
	settings.LineSearch = LineSearchFixed
	settings.FixedStep = 1e-3
	settings.StepTolerance = 1

	res := solve(t, settings, optimtest.Rosenbrock, []float64{-1.2, 1})
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, optimization.StepTolerance, res.Termination)
}

func TestRelativeTolerance(t *testing.T) {
	settings := DefaultSettings()
	settings.Direction = DirectionGradient
	settings.LineSearch = LineSearchBacktracking
	settings.Tolerance = 1e-3
	settings.Relative = true

	res := solve(t, settings, optimtest.Shifted([]float64{1, 1}, []float64{1000, 0}), []float64{0, 3})
	assert.LessOrEqual(t, res.GradientNorm, 1e-3*math.Max(1, floats.Norm(res.Point, 2)))
}

func TestFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		settings func() Settings
		oracle   optimization.Oracle
		x0       []float64
		ctx      func() context.Context
		reason   optimization.FailureReason
	}{
		{
			name: "max iterations",
			settings: func() Settings {
				s := DefaultSettings()
				s.Direction = DirectionGradient
				s.LineSearch = LineSearchBacktracking
				s.MaxIterations = 5
				return s
			},
			oracle: optimtest.Rosenbrock,
			x0:     []float64{-1.2, 1},
			reason: optimization.MaxIterationsExceeded,
		},
		{
			name:     "non-finite start",
			settings: DefaultSettings,
			oracle: optimization.OracleFunc(func(x []float64) (*optimization.Evaluation, error) {
				return &optimization.Evaluation{Value: math.NaN(), Gradient: []float64{0}}, nil
			}),
			x0:     []float64{1},
			reason: optimization.NonFiniteValue,
		},
		{
			name:     "oracle error",
			settings: DefaultSettings,
			oracle: optimization.OracleFunc(func([]float64) (*optimization.Evaluation, error) {
				return nil, boom
			}),
			x0:     []float64{1},
			reason: optimization.EvaluationFailed,
		},
		{
			name: "bounds dimension",
			settings: func() Settings {
				s := DefaultSettings()
				s.Bounds, _ = projection.Uniform(3, 0, 1)
				return s
			},
			oracle: optimtest.Rosenbrock,
			x0:     []float64{0, 0},
			reason: optimization.InvalidBounds,
		},
		{
			name: "newton without hessian",
			settings: func() Settings {
				s := DefaultSettings()
				s.Direction = DirectionNewton
				return s
			},
			oracle: optimtest.Rosenbrock,
			x0:     []float64{0, 0},
			reason: optimization.InvalidSettings,
		},
		{
			name:     "cancelled",
			settings: DefaultSettings,
			oracle:   optimtest.Rosenbrock,
			x0:       []float64{-1.2, 1},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			reason: optimization.Cancelled,
		},
		{
			name:     "empty start",
			settings: DefaultSettings,
			oracle:   optimtest.Rosenbrock,
			x0:       nil,
			reason:   optimization.InvalidSettings,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.settings())
			require.NoError(t, err)
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}

			res, err := s.Minimize(ctx, tt.oracle, tt.x0)
			require.Error(t, err)
			require.NotNil(t, res)
			assert.False(t, res.Success)
			assert.Equal(t, tt.reason, res.FailureReason)
			assert.Equal(t, tt.reason, optimization.ReasonOf(err))

			var oerr *optimization.Error
			require.True(t, errors.As(err, &oerr))
			assert.Equal(t, res.Iterations, oerr.Iteration)
		})
	}
}

func TestFailureKeepsLastIterate(t *testing.T) {
	settings := DefaultSettings()
	settings.Direction = DirectionGradient
	settings.LineSearch = LineSearchBacktracking
	settings.MaxIterations = 3

	s, err := New(settings)
	require.NoError(t, err)
	res, err := s.Minimize(context.Background(), optimtest.Rosenbrock, []float64{-1.2, 1})
	require.Error(t, err)

	assert.Equal(t, 3, res.Iterations)
	require.Len(t, res.History, 3)
	last := res.History[2]
	assert.Equal(t, last.Point, res.Point)
	assert.Equal(t, last.Value, res.Value)
	for i := 1; i < len(res.History); i++ {
		assert.LessOrEqual(t, res.History[i].Value, res.History[i-1].Value)
	}
}

func TestOracleErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	oracle := optimization.OracleFunc(func(x []float64) (*optimization.Evaluation, error) {
		calls++
		if calls > 1 {
			return nil, boom
		}
		return optimtest.Rosenbrock.Evaluate(x)
	})

	s, err := New(DefaultSettings())
	require.NoError(t, err)
	res, err := s.Minimize(context.Background(), oracle, []float64{-1.2, 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []float64{-1.2, 1}, res.Point)
}

func TestInvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		reason optimization.FailureReason
	}{
		{name: "c1 above c2", mutate: func(s *Settings) { s.C1, s.C2 = 0.9, 0.1 }, reason: optimization.InvalidSettings},
		{name: "negative tolerance", mutate: func(s *Settings) { s.Tolerance = -1 }, reason: optimization.InvalidSettings},
		{name: "negative iterations", mutate: func(s *Settings) { s.MaxIterations = -1 }, reason: optimization.InvalidSettings},
		{name: "unknown line search", mutate: func(s *Settings) { s.LineSearch = LineSearchKind(99) }, reason: optimization.InvalidSettings},
		{name: "inverted bounds", mutate: func(s *Settings) {
			s.Bounds = &projection.Bounds{Lower: []float64{1}, Upper: []float64{0}}
		}, reason: optimization.InvalidBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			tt.mutate(&settings)
			_, err := New(settings)
			require.Error(t, err)
			assert.Equal(t, tt.reason, optimization.ReasonOf(err))
		})
	}
}

func TestNegativeSettingsMessages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{name: "iterations", mutate: func(s *Settings) { s.MaxIterations = -1 }, want: "max iterations must not be negative"},
		{name: "trials", mutate: func(s *Settings) { s.MaxLineSearchTrials = -1 }, want: "max line search trials must not be negative"},
		{name: "window", mutate: func(s *Settings) { s.NonmonotoneWindow = -1 }, want: "nonmonotone window must not be negative"},
		{name: "memory", mutate: func(s *Settings) { s.MemorySize = -1 }, want: "memory size must not be negative"},
		{name: "fixed step", mutate: func(s *Settings) { s.FixedStep = -1 }, want: "fixed step must not be negative"},
		{name: "sr1 tolerance", mutate: func(s *Settings) { s.SR1Tol = -1 }, want: "curvature tolerances must not be negative"},
		{name: "scaling rate", mutate: func(s *Settings) { s.ScalingRate = -1 }, want: "scaling rate must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			tt.mutate(&settings)
			err := settings.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	// Zero selects the default.
	settings := DefaultSettings()
	settings.MaxLineSearchTrials, settings.MemorySize, settings.NonmonotoneWindow = 0, 0, 0
	assert.NoError(t, settings.Validate())
}

// skipping wraps a strategy and reports every update as skipped.
type skipping struct {
	direction.Strategy
}

func (skipping) Update(direction.State, direction.State) curvature.Status {
	return curvature.SkippedCurvature
}

func TestEvents(t *testing.T) {
	counts := map[optimization.EventKind]int{}
	settings := DefaultSettings()
	settings.Strategy = skipping{&direction.Gradient{}}
	settings.LineSearch = LineSearchBacktracking
	settings.Observer = optimization.ObserverFunc(func(e optimization.Event) {
		counts[e.Kind]++
		assert.Equal(t, "gradient+backtracking", e.Method)
	})

	res := solve(t, settings, optimtest.Shifted([]float64{1, 2}, []float64{0, 0}), []float64{2, 1})
	assert.Equal(t, 1, counts[optimization.EventStarted])
	assert.Equal(t, res.Iterations, counts[optimization.EventIteration])
	assert.Equal(t, res.Iterations, counts[optimization.EventCurvatureSkipped])
	assert.Equal(t, 1, counts[optimization.EventConverged])
	assert.Zero(t, counts[optimization.EventFailed])
}

func TestMethodNames(t *testing.T) {
	bounds, err := projection.Uniform(1, 0, 1)
	require.NoError(t, err)

	tests := []struct {
		mutate func(*Settings)
		want   string
	}{
		{mutate: func(*Settings) {}, want: "bfgs+more_thuente"},
		{mutate: func(s *Settings) { s.Curvature = CurvatureLBFGS; s.Bounds = bounds }, want: "lbfgs_b+more_thuente"},
		{mutate: func(s *Settings) { s.Direction = DirectionGradient; s.Bounds = bounds }, want: "projected_gradient+more_thuente"},
		{mutate: func(s *Settings) { s.Direction = DirectionSpectral; s.LineSearch = LineSearchNonmonotone }, want: "spectral+nonmonotone"},
		{mutate: func(s *Settings) {
			s.Direction, s.LineSearch, s.Bounds = DirectionGradient, LineSearchProjected, bounds
		}, want: "projected_gradient+projected_backtracking"},
		{mutate: func(s *Settings) { s.Direction, s.LineSearch = DirectionOSGMFull, LineSearchBacktracking }, want: "osgm_full+backtracking"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			settings := DefaultSettings()
			tt.mutate(&settings)
			s, err := New(settings)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Method())
		})
	}
}
