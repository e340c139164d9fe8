package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/descent/internal/logging"
	"github.com/copyleftdev/descent/internal/optimization/solver"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Solver struct {
		Tolerance     float64               `env:"SOLVER_TOLERANCE" envDefault:"1e-6"`
		MaxIterations int                   `env:"SOLVER_MAX_ITERATIONS" envDefault:"1000"`
		LineSearch    solver.LineSearchKind `env:"SOLVER_LINE_SEARCH" envDefault:"more_thuente"`
		Direction     solver.DirectionKind  `env:"SOLVER_DIRECTION" envDefault:"quasi_newton"`
		Curvature     solver.CurvatureKind  `env:"SOLVER_CURVATURE" envDefault:"bfgs"`
		MemorySize    int                   `env:"SOLVER_MEMORY" envDefault:"10"`
		C1            float64               `env:"SOLVER_C1" envDefault:"1e-4"`
		C2            float64               `env:"SOLVER_C2" envDefault:"0.9"`
		MaxTrials     int                   `env:"SOLVER_MAX_TRIALS" envDefault:"50"`
		Window        int                   `env:"SOLVER_NONMONOTONE_WINDOW" envDefault:"10"`
		// Workers bounds concurrently running solve jobs.
		Workers int `env:"SOLVER_WORKERS" envDefault:"4"`
		// JobTimeout bounds the wall time of one job; zero disables it.
		JobTimeout time.Duration `env:"SOLVER_JOB_TIMEOUT" envDefault:"5m"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		}
	}

	if cfg.Solver.Workers <= 0 {
		return nil, fmt.Errorf("SOLVER_WORKERS must be positive, got %d", cfg.Solver.Workers)
	}
	if err := cfg.SolverSettings().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SolverSettings returns the default solver settings described by the
// environment. Requests may override individual fields.
func (c *Config) SolverSettings() solver.Settings {
	s := solver.DefaultSettings()
	s.Tolerance = c.Solver.Tolerance
	s.MaxIterations = c.Solver.MaxIterations
	s.LineSearch = c.Solver.LineSearch
	s.Direction = c.Solver.Direction
	s.Curvature = c.Solver.Curvature
	s.MemorySize = c.Solver.MemorySize
	s.C1 = c.Solver.C1
	s.C2 = c.Solver.C2
	s.MaxLineSearchTrials = c.Solver.MaxTrials
	s.NonmonotoneWindow = c.Solver.Window
	return s
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() *logging.Config {
	return &logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}
