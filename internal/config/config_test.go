package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/descent/internal/optimization/solver"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Solver.Workers)
	assert.Equal(t, solver.DefaultSettings().Tolerance, cfg.SolverSettings().Tolerance)
	assert.Equal(t, solver.LineSearchMoreThuente, cfg.Solver.LineSearch)
}

func TestLoadDevelopmentLogsDebug(t *testing.T) {
	t.Setenv("ENV", "development")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LoggingConfig().Level)
}

func TestLoadSolverOverrides(t *testing.T) {
	t.Setenv("SOLVER_LINE_SEARCH", "backtracking")
	t.Setenv("SOLVER_DIRECTION", "spectral")
	t.Setenv("SOLVER_CURVATURE", "lbfgs")
	t.Setenv("SOLVER_MAX_ITERATIONS", "250")
	t.Setenv("SOLVER_WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	s := cfg.SolverSettings()
	assert.Equal(t, solver.LineSearchBacktracking, s.LineSearch)
	assert.Equal(t, solver.DirectionSpectral, s.Direction)
	assert.Equal(t, solver.CurvatureLBFGS, s.Curvature)
	assert.Equal(t, 250, s.MaxIterations)
	assert.Equal(t, 2, cfg.Solver.Workers)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SOLVER_LINE_SEARCH": "golden",
		"SOLVER_C1":          "0.95",
		"SOLVER_WORKERS":     "0",
		"HTTP_PORT":          "eighty",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
