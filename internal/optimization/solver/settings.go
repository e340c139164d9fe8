package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/curvature"
	"github.com/copyleftdev/descent/internal/optimization/direction"
	"github.com/copyleftdev/descent/internal/optimization/linesearch"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// Settings configures a Solver. Zero numeric fields take the value from
// DefaultSettings.
type Settings struct {
	// Tolerance on the norm of the (projected) gradient.
	Tolerance float64 `json:"tolerance"`
	// Relative scales Tolerance by max(1, ‖x‖).
	Relative      bool `json:"relative,omitempty"`
	MaxIterations int  `json:"max_iterations"`

	LineSearch LineSearchKind `json:"line_search"`
	Direction  DirectionKind  `json:"direction"`
	Curvature  CurvatureKind  `json:"curvature"`
	// MemorySize is the number of pairs kept by L-BFGS.
	MemorySize int `json:"memory_size,omitempty"`

	// Bounds is nil for unconstrained problems.
	Bounds *projection.Bounds `json:"bounds,omitempty"`

	C1                  float64 `json:"c1,omitempty"`
	C2                  float64 `json:"c2,omitempty"`
	MaxLineSearchTrials int     `json:"max_line_search_trials,omitempty"`
	NonmonotoneWindow   int     `json:"nonmonotone_window,omitempty"`
	// FixedStep is the step taken by LineSearchFixed.
	FixedStep float64 `json:"fixed_step,omitempty"`
	// CurvatureTol is ε in the skip test yᵗs ≤ ε‖y‖‖s‖.
	CurvatureTol float64 `json:"curvature_tol,omitempty"`
	// SR1Tol is r in the SR1 skip test |(s-Hy)ᵗy| < r‖y‖‖s-Hy‖.
	SR1Tol float64 `json:"sr1_tol,omitempty"`
	// ScalingRate is the AdaGrad rate of the OSGM directions.
	ScalingRate float64 `json:"scaling_rate,omitempty"`
	// StepTolerance stops a run successfully when ‖x₊ - x‖ falls below it.
	// Zero disables the test.
	StepTolerance float64 `json:"step_tolerance,omitempty"`
	// Preconditioner is the row-major n×n matrix P of DirectionPNorm.
	// Nil means the identity.
	Preconditioner []float64 `json:"preconditioner,omitempty"`

	// Observer receives run events; nil discards them.
	Observer optimization.Observer `json:"-"`
	// Searcher and Strategy replace the ones built from the kinds above.
	// They are shared by every run of the solver.
	Searcher linesearch.Searcher `json:"-"`
	Strategy direction.Strategy  `json:"-"`
}

// DefaultSettings returns BFGS with a Moré-Thuente line search.
func DefaultSettings() Settings {
	return Settings{
		Tolerance:           1e-6,
		MaxIterations:       1000,
		LineSearch:          LineSearchMoreThuente,
		Direction:           DirectionQuasiNewton,
		Curvature:           CurvatureBFGS,
		MemorySize:          curvature.DefaultMemory,
		C1:                  linesearch.DefaultC1,
		C2:                  linesearch.DefaultC2,
		MaxLineSearchTrials: linesearch.DefaultMaxTrials,
		NonmonotoneWindow:   linesearch.DefaultWindow,
		FixedStep:           1,
		CurvatureTol:        curvature.DefaultCurvatureTol,
		SR1Tol:              curvature.DefaultSR1Tol,
		ScalingRate:         direction.DefaultOSGMRate,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.Tolerance == 0 {
		s.Tolerance = def.Tolerance
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = def.MaxIterations
	}
	if s.MemorySize == 0 {
		s.MemorySize = def.MemorySize
	}
	if s.C1 == 0 {
		s.C1 = def.C1
	}
	if s.C2 == 0 {
		s.C2 = def.C2
	}
	if s.MaxLineSearchTrials == 0 {
		s.MaxLineSearchTrials = def.MaxLineSearchTrials
	}
	if s.NonmonotoneWindow == 0 {
		s.NonmonotoneWindow = def.NonmonotoneWindow
	}
	if s.FixedStep == 0 {
		s.FixedStep = def.FixedStep
	}
	if s.CurvatureTol == 0 {
		s.CurvatureTol = def.CurvatureTol
	}
	if s.SR1Tol == 0 {
		s.SR1Tol = def.SR1Tol
	}
	if s.ScalingRate == 0 {
		s.ScalingRate = def.ScalingRate
	}
	if s.Observer == nil {
		s.Observer = optimization.Discard
	}
	return s
}

func invalid(format string, args ...interface{}) error {
	return optimization.NewErrorf(optimization.InvalidSettings, format, args...).
		WithComponent("solver").WithOperation("validate")
}

// Validate checks the settings after defaults have been applied.
func (s Settings) Validate() error {
	s = s.withDefaults()
	switch {
	case !(s.Tolerance > 0) || math.IsInf(s.Tolerance, 0):
		return invalid("tolerance must be positive, got %g", s.Tolerance)
	case s.MaxIterations < 0:
		return invalid("max iterations must not be negative, got %d", s.MaxIterations)
	case !(s.C1 > 0 && s.C1 < s.C2 && s.C2 < 1):
		return invalid("line search constants must satisfy 0 < c1 < c2 < 1, got c1=%g c2=%g", s.C1, s.C2)
	case s.MaxLineSearchTrials < 0:
		return invalid("max line search trials must not be negative, got %d", s.MaxLineSearchTrials)
	case s.NonmonotoneWindow < 0:
		return invalid("nonmonotone window must not be negative, got %d", s.NonmonotoneWindow)
	case s.MemorySize < 0:
		return invalid("memory size must not be negative, got %d", s.MemorySize)
	case s.FixedStep < 0:
		return invalid("fixed step must not be negative, got %g", s.FixedStep)
	case s.CurvatureTol < 0 || s.SR1Tol < 0:
		return invalid("curvature tolerances must not be negative, got %g and %g", s.CurvatureTol, s.SR1Tol)
	case s.ScalingRate < 0:
		return invalid("scaling rate must not be negative, got %g", s.ScalingRate)
	case s.StepTolerance < 0:
		return invalid("step tolerance must not be negative, got %g", s.StepTolerance)
	}
	if _, ok := lineSearchNames[s.LineSearch]; !ok && s.Searcher == nil {
		return invalid("unknown line search %d", int(s.LineSearch))
	}
	if _, ok := directionNames[s.Direction]; !ok && s.Strategy == nil {
		return invalid("unknown direction %d", int(s.Direction))
	}
	if _, ok := curvatureNames[s.Curvature]; !ok && s.Strategy == nil {
		return invalid("unknown curvature update %d", int(s.Curvature))
	}
	return s.Bounds.Validate()
}

// method names the algorithm, for example "bfgs+more_thuente".
func (s Settings) method() string {
	var dir, ls string
	if s.Strategy != nil {
		dir = s.Strategy.Name()
	} else {
		switch s.Direction {
		case DirectionQuasiNewton:
			dir = s.Curvature.String()
		case DirectionGradient:
			dir = "gradient"
			if s.Bounds != nil {
				dir = "projected_gradient"
			}
		default:
			dir = s.Direction.String()
		}
		if s.Bounds != nil && s.Direction == DirectionQuasiNewton {
			dir += "_b"
		}
	}
	if s.Searcher != nil {
		ls = s.Searcher.Name()
	} else {
		ls = s.LineSearch.String()
	}
	return dir + "+" + ls
}

// newSearcher builds the line search of one run.
func (s Settings) newSearcher() linesearch.Searcher {
	if s.Searcher != nil {
		if r, ok := s.Searcher.(linesearch.Resetter); ok {
			r.Reset()
		}
		return s.Searcher
	}
	switch s.LineSearch {
	case LineSearchBacktracking:
		bt := linesearch.NewBacktracking()
		bt.C1, bt.MaxTrials = s.C1, s.MaxLineSearchTrials
		return bt
	case LineSearchNonmonotone:
		nm := linesearch.NewNonmonotone(s.NonmonotoneWindow)
		nm.C1, nm.MaxTrials = s.C1, s.MaxLineSearchTrials
		return nm
	case LineSearchFixed:
		return &linesearch.Fixed{Step: s.FixedStep}
	case LineSearchProjected:
		ps := linesearch.NewProjectedBacktracking(s.Bounds)
		ps.C1, ps.MaxTrials = s.C1, s.MaxLineSearchTrials
		return ps
	default:
		mt := linesearch.NewMoreThuente()
		mt.C1, mt.C2, mt.MaxTrials = s.C1, s.C2, s.MaxLineSearchTrials
		return mt
	}
}

// newStrategy builds the direction strategy of one run over n variables.
func (s Settings) newStrategy(n int) (direction.Strategy, error) {
	if s.Strategy != nil {
		return s.Strategy, nil
	}
	opts := curvature.Options{CurvatureTol: s.CurvatureTol, SR1Tol: s.SR1Tol}
	switch s.Direction {
	case DirectionGradient:
		return &direction.Gradient{Bounds: s.Bounds}, nil
	case DirectionCoordinate:
		return &direction.Coordinate{Bounds: s.Bounds}, nil
	case DirectionPNorm:
		if s.Preconditioner == nil {
			return direction.NewPNorm(identity(n), s.Bounds)
		}
		if len(s.Preconditioner) != n*n {
			return nil, invalid("preconditioner has %d entries, want %d", len(s.Preconditioner), n*n)
		}
		return direction.NewPNorm(mat.NewSymDense(n, append([]float64(nil), s.Preconditioner...)), s.Bounds)
	case DirectionNewton:
		return &direction.Newton{Bounds: s.Bounds}, nil
	case DirectionSpectral:
		return &direction.Spectral{Bounds: s.Bounds}, nil
	case DirectionOSGM, DirectionOSGMFull:
		return &direction.OSGM{Full: s.Direction == DirectionOSGMFull, Rate: s.ScalingRate, Bounds: s.Bounds}, nil
	}
	switch s.Curvature {
	case CurvatureLBFGS:
		return direction.NewLBFGS(s.MemorySize, opts, s.Bounds), nil
	case CurvatureDFP:
		return direction.NewQuasiNewton(curvature.DFP, opts, s.Bounds), nil
	case CurvatureBroyden:
		return direction.NewQuasiNewton(curvature.Broyden, opts, s.Bounds), nil
	case CurvatureSR1:
		return direction.NewQuasiNewton(curvature.SR1, opts, s.Bounds), nil
	default:
		return direction.NewQuasiNewton(curvature.BFGS, opts, s.Bounds), nil
	}
}

func identity(n int) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
	}
	return m
}
