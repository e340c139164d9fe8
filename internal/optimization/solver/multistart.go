package solver

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/copyleftdev/descent/internal/optimization"
)

// MultiStartResult holds every run of MultiStart in start order.
type MultiStartResult struct {
	Best *optimization.Result
	// BestIndex is the index of Best in Runs, -1 when no run succeeded.
	BestIndex int
	Runs      []*optimization.Result
	Errors    []error
}

// MultiStart runs an independent solver from every start point on at most
// workers goroutines and picks the successful run with the lowest value.
// The oracle and Settings.Observer must be safe for concurrent use.
// Runs already in flight stop when ctx is cancelled.
func MultiStart(ctx context.Context, settings Settings, oracle optimization.Oracle, starts [][]float64, workers int) (*MultiStartResult, error) {
	if settings.Searcher != nil || settings.Strategy != nil {
		return nil, invalid("multi-start cannot share a Searcher or Strategy between runs")
	}
	if len(starts) == 0 {
		return nil, invalid("multi-start needs at least one start point")
	}
	s, err := New(settings)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	res := &MultiStartResult{
		BestIndex: -1,
		Runs:      make([]*optimization.Result, len(starts)),
		Errors:    make([]error, len(starts)),
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, x0 := range starts {
		i, x0 := i, x0
		g.Go(func() error {
			res.Runs[i], res.Errors[i] = s.Minimize(ctx, oracle, x0)
			return nil
		})
	}
	_ = g.Wait()

	for i, run := range res.Runs {
		if res.Errors[i] != nil || !run.Success {
			continue
		}
		if res.BestIndex < 0 || run.Value < res.Best.Value {
			res.Best, res.BestIndex = run, i
		}
	}
	if res.BestIndex < 0 {
		return res, optimization.WrapError(res.Errors[0], optimization.ReasonOf(res.Errors[0]),
			"no start point converged").WithComponent("solver").WithOperation("multi_start")
	}
	return res, nil
}
