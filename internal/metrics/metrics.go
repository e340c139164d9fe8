// Package metrics exports solver events and solve-job counts to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/descent/internal/optimization"
)

const namespace = "descent"

// Collector turns solver events into Prometheus series. It is safe for
// concurrent use, so one Collector can observe every run of a process.
type Collector struct {
	runs        *prometheus.CounterVec
	iterations  *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	resets      *prometheus.CounterVec
	active      *prometheus.GaugeVec
	runIters    *prometheus.HistogramVec
	runEvals    *prometheus.HistogramVec
	stepLengths *prometheus.HistogramVec
	jobs        *prometheus.CounterVec
}

var _ optimization.Observer = (*Collector)(nil)

// NewCollector creates the solver metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_runs_total",
			Help:      "Finished solver runs by method and outcome.",
		}, []string{"method", "outcome", "reason"}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_iterations_total",
			Help:      "Accepted solver iterations.",
		}, []string{"method"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_curvature_skipped_total",
			Help:      "Curvature updates skipped by the safeguards.",
		}, []string{"method", "status"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_direction_resets_total",
			Help:      "Directions replaced by steepest descent.",
		}, []string{"method"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solver_active_runs",
			Help:      "Runs started but not yet finished.",
		}, []string{"method"}),
		runIters: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solver_run_iterations",
			Help:      "Iterations per finished run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"method"}),
		runEvals: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solver_run_evaluations",
			Help:      "Oracle evaluations per finished run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"method"}),
		stepLengths: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solver_step_length",
			Help:      "Accepted line search step lengths.",
			Buckets:   prometheus.ExponentialBuckets(1e-8, 10, 11),
		}, []string{"method"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Solve jobs by final status.",
		}, []string{"objective", "status"}),
	}

	for _, col := range []prometheus.Collector{
		c.runs, c.iterations, c.skipped, c.resets, c.active,
		c.runIters, c.runEvals, c.stepLengths, c.jobs,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Observe implements optimization.Observer.
func (c *Collector) Observe(e optimization.Event) {
	switch e.Kind {
	case optimization.EventStarted:
		c.active.WithLabelValues(e.Method).Inc()
	case optimization.EventIteration:
		c.iterations.WithLabelValues(e.Method).Inc()
		if e.Step > 0 {
			c.stepLengths.WithLabelValues(e.Method).Observe(e.Step)
		}
	case optimization.EventCurvatureSkipped:
		c.skipped.WithLabelValues(e.Method, e.Detail).Inc()
	case optimization.EventDirectionReset:
		c.resets.WithLabelValues(e.Method).Inc()
	case optimization.EventConverged:
		c.finish(e, "converged", e.Detail)
	case optimization.EventFailed:
		c.finish(e, "failed", e.Reason.String())
	}
}

func (c *Collector) finish(e optimization.Event, outcome, reason string) {
	c.runs.WithLabelValues(e.Method, outcome, reason).Inc()
	c.runIters.WithLabelValues(e.Method).Observe(float64(e.Iteration))
	c.runEvals.WithLabelValues(e.Method).Observe(float64(e.Evaluations))
	c.active.WithLabelValues(e.Method).Dec()
}

// JobFinished counts a solve job that reached a terminal status.
func (c *Collector) JobFinished(objective, status string) {
	c.jobs.WithLabelValues(objective, status).Inc()
}
