package solver

import (
	"context"
	"encoding/json"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/direction"
	"github.com/copyleftdev/descent/internal/optimization/optimtest"
)

func TestParseKinds(t *testing.T) {
	ls, err := ParseLineSearch("More-Thuente")
	require.NoError(t, err)
	assert.Equal(t, LineSearchMoreThuente, ls)

	dir, err := ParseDirection(" quasi-newton ")
	require.NoError(t, err)
	assert.Equal(t, DirectionQuasiNewton, dir)

	curv, err := ParseCurvature("LBFGS")
	require.NoError(t, err)
	assert.Equal(t, CurvatureLBFGS, curv)

	for k := range lineSearchNames {
		got, err := ParseLineSearch(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	for k := range directionNames {
		got, err := ParseDirection(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	for k := range curvatureNames {
		got, err := ParseCurvature(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err = ParseLineSearch("wolfe")
	assert.Error(t, err)
	_, err = ParseDirection("")
	assert.Error(t, err)
	_, err = ParseCurvature("psb")
	assert.Error(t, err)
	assert.Equal(t, "unknown(42)", CurvatureKind(42).String())
}

func TestSettingsFromJSON(t *testing.T) {
	raw := `{
		"tolerance": 1e-8,
		"max_iterations": 50,
		"line_search": "backtracking",
		"direction": "spectral",
		"curvature": "sr1",
		"bounds": {"lower": [0, 0], "upper": [1, 1]}
	}`
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, 1e-8, s.Tolerance)
	assert.Equal(t, 50, s.MaxIterations)
	assert.Equal(t, LineSearchBacktracking, s.LineSearch)
	assert.Equal(t, DirectionSpectral, s.Direction)
	assert.Equal(t, CurvatureSR1, s.Curvature)
	require.NotNil(t, s.Bounds)
	assert.Equal(t, []float64{1, 1}, s.Bounds.Upper)
	require.NoError(t, s.Validate())

	err := json.Unmarshal([]byte(`{"direction": "simplex"}`), &s)
	assert.Error(t, err)
}

func TestDefaultsFillZeroFields(t *testing.T) {
	s, err := New(Settings{Direction: DirectionGradient})
	require.NoError(t, err)
	got := s.Settings()
	def := DefaultSettings()
	assert.Equal(t, def.Tolerance, got.Tolerance)
	assert.Equal(t, def.MaxIterations, got.MaxIterations)
	assert.Equal(t, def.C1, got.C1)
	assert.Equal(t, def.C2, got.C2)
	assert.NotNil(t, got.Observer)
	assert.Equal(t, "gradient+more_thuente", s.Method())
}

func TestPreconditionerSize(t *testing.T) {
	settings := DefaultSettings()
	settings.Direction = DirectionPNorm
	settings.Preconditioner = []float64{1, 0, 0}

	s, err := New(settings)
	require.NoError(t, err)
	_, err = s.Minimize(context.Background(), optimtest.Rosenbrock, []float64{0, 0})
	require.Error(t, err)
	assert.Equal(t, optimization.InvalidSettings, optimization.ReasonOf(err))
}

func TestMultiStart(t *testing.T) {
	// Two wells, at ±1, with the well at -1 lower.
	var calls atomic.Int64
	oracle := optimization.OracleFunc(func(x []float64) (*optimization.Evaluation, error) {
		calls.Add(1)
		v := x[0]
		return &optimization.Evaluation{
			Value:    (v*v-1)*(v*v-1) + 0.2*v,
			Gradient: []float64{4*v*(v*v-1) + 0.2},
		}, nil
	})
	starts := [][]float64{{2}, {-2}, {1.5}, {-0.5}}

	res, err := MultiStart(context.Background(), DefaultSettings(), oracle, starts, 2)
	require.NoError(t, err)
	require.Len(t, res.Runs, len(starts))
	require.NotNil(t, res.Best)
	assert.Less(t, res.Best.Point[0], 0.0)
	for i, run := range res.Runs {
		require.NoError(t, res.Errors[i])
		assert.GreaterOrEqual(t, run.Value, res.Best.Value)
	}
	assert.Equal(t, res.Runs[res.BestIndex], res.Best)
	assert.Positive(t, calls.Load())
}

func TestMultiStartAllFail(t *testing.T) {
	oracle := optimization.OracleFunc(func(x []float64) (*optimization.Evaluation, error) {
		return &optimization.Evaluation{Value: math.Inf(1), Gradient: make([]float64, len(x))}, nil
	})
	res, err := MultiStart(context.Background(), DefaultSettings(), oracle, [][]float64{{1}, {2}}, 0)
	require.Error(t, err)
	assert.Equal(t, optimization.NonFiniteValue, optimization.ReasonOf(err))
	assert.Equal(t, -1, res.BestIndex)
	assert.Nil(t, res.Best)
}

func TestMultiStartRejectsSharedState(t *testing.T) {
	settings := DefaultSettings()
	settings.Strategy = &direction.Gradient{}
	_, err := MultiStart(context.Background(), settings, optimtest.Rosenbrock, [][]float64{{0, 0}}, 1)
	require.Error(t, err)
	assert.Equal(t, optimization.InvalidSettings, optimization.ReasonOf(err))

	_, err = MultiStart(context.Background(), DefaultSettings(), optimtest.Rosenbrock, nil, 1)
	assert.Error(t, err)
}
