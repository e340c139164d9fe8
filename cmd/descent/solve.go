package main

import (
	"encoding/json"
	"fmt"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/descent/internal/logging"
	"github.com/copyleftdev/descent/internal/objectives"
	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/projection"
	"github.com/copyleftdev/descent/internal/optimization/solver"
)

var solveOpts struct {
	objective     string
	start         []float64
	lower         []float64
	upper         []float64
	direction     string
	lineSearch    string
	curvature     string
	tolerance     float64
	maxIterations int
	history       bool
	list          bool
}

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Minimize a catalog objective and print the result as JSON",
	Example: `  descent solve --objective rosenbrock --curvature lbfgs
  descent solve --objective box_quadratic --direction spectral --line-search nonmonotone
  descent solve --list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if solveOpts.list {
			return listObjectives(cmd)
		}
		return solve(cmd)
	},
}

func init() {
	f := solveCmd.Flags()
	f.StringVarP(&solveOpts.objective, "objective", "o", "rosenbrock", "Objective name (see --list)")
	f.Float64SliceVar(&solveOpts.start, "start", nil, "Start point (defaults to the objective's)")
	f.Float64SliceVar(&solveOpts.lower, "lower", nil, "Lower bounds, one per coordinate")
	f.Float64SliceVar(&solveOpts.upper, "upper", nil, "Upper bounds, one per coordinate")
	f.StringVar(&solveOpts.direction, "direction", "", "Direction: quasi_newton, gradient, coordinate, pnorm, newton, spectral, osgm, osgm_full")
	f.StringVar(&solveOpts.lineSearch, "line-search", "", "Line search: more_thuente, backtracking, nonmonotone, fixed, projected_backtracking")
	f.StringVar(&solveOpts.curvature, "curvature", "", "Quasi-Newton update: bfgs, dfp, broyden, sr1, lbfgs")
	f.Float64Var(&solveOpts.tolerance, "tolerance", 0, "Gradient norm tolerance")
	f.IntVar(&solveOpts.maxIterations, "max-iterations", 0, "Iteration limit")
	f.BoolVar(&solveOpts.history, "history", false, "Include the iteration history")
	f.BoolVar(&solveOpts.list, "list", false, "List the objective catalog and exit")
	rootCmd.AddCommand(solveCmd)
}

// solveSettings applies the command line flags to the configured defaults.
func solveSettings(obj *objectives.Objective) (solver.Settings, error) {
	s := cfg.SolverSettings()
	s.Bounds = obj.Bounds

	var err error
	if solveOpts.direction != "" {
		if s.Direction, err = solver.ParseDirection(solveOpts.direction); err != nil {
			return s, err
		}
	}
	if solveOpts.lineSearch != "" {
		if s.LineSearch, err = solver.ParseLineSearch(solveOpts.lineSearch); err != nil {
			return s, err
		}
	}
	if solveOpts.curvature != "" {
		if s.Curvature, err = solver.ParseCurvature(solveOpts.curvature); err != nil {
			return s, err
		}
	}
	if solveOpts.tolerance > 0 {
		s.Tolerance = solveOpts.tolerance
	}
	if solveOpts.maxIterations > 0 {
		s.MaxIterations = solveOpts.maxIterations
	}
	if solveOpts.lower != nil || solveOpts.upper != nil {
		if s.Bounds, err = projection.NewBounds(solveOpts.lower, solveOpts.upper); err != nil {
			return s, err
		}
	}
	return s, nil
}

func solve(cmd *cobra.Command) error {
	obj, err := objectives.Lookup(solveOpts.objective)
	if err != nil {
		return err
	}
	oracle, err := obj.Oracle()
	if err != nil {
		return err
	}
	settings, err := solveSettings(obj)
	if err != nil {
		return err
	}
	settings.Observer = logging.EventLogger(logger.WithField("objective", obj.Name))
	if settings.Bounds != nil && settings.Bounds.Dim() != obj.Dim {
		return fmt.Errorf("bounds have %d entries, objective %s has dimension %d",
			settings.Bounds.Dim(), obj.Name, obj.Dim)
	}
	x0 := solveOpts.start
	if x0 == nil {
		x0 = obj.StartPoint()
	}
	if len(x0) != obj.Dim {
		return fmt.Errorf("start point has %d entries, objective %s has dimension %d",
			len(x0), obj.Name, obj.Dim)
	}

	slv, err := solver.New(settings)
	if err != nil {
		return err
	}

	res, runErr := slv.Minimize(cmd.Context(), oracle, x0)
	if !solveOpts.history {
		res.History = nil
	}
	out := struct {
		Objective string               `json:"objective"`
		Method    string               `json:"method"`
		Result    *optimization.Result `json:"result"`
		Error     string               `json:"error,omitempty"`
	}{Objective: obj.Name, Method: slv.Method(), Result: res}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	// encoding/json rejects NaN, which a run failing at its start point carries.
	if math.IsNaN(res.Value) || math.IsInf(res.Value, 0) || math.IsNaN(res.GradientNorm) {
		out.Result = nil
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return runErr
}

func listObjectives(cmd *cobra.Command) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDIM\tHESSIAN\tBOUNDED\tDESCRIPTION")
	for _, o := range objectives.All() {
		fmt.Fprintf(w, "%s\t%d\t%t\t%t\t%s\n", o.Name, o.Dim, o.Hessian, o.Bounds != nil, o.Description)
	}
	return w.Flush()
}
