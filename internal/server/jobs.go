package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/copyleftdev/descent/internal/errors"
	"github.com/copyleftdev/descent/internal/logging"
	"github.com/copyleftdev/descent/internal/objectives"
	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/projection"
	"github.com/copyleftdev/descent/internal/optimization/solver"
)

// JobStatus is the lifecycle state of a solve job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job can no longer change.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// SolveRequest starts a job on a catalog objective.
//
// Settings is decoded on top of the server's default solver settings, so
// only the fields to override need to be sent. Bounds uses the
// [[min1, max1], [min2, max2], ...] form; without it the objective's own
// bounds apply. More than one entry in Starts runs a multi-start search.
type SolveRequest struct {
	Objective string          `json:"objective"`
	Start     []float64       `json:"start,omitempty"`
	Starts    [][]float64     `json:"starts,omitempty"`
	Bounds    [][]float64     `json:"bounds,omitempty"`
	Settings  json.RawMessage `json:"settings,omitempty"`
}

// Job tracks one solve request. All fields are guarded by Server.jobsMu.
type Job struct {
	ID          string
	Objective   string
	Method      string
	Status      JobStatus
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time

	Iteration    int
	Value        float64
	GradientNorm float64
	Evaluations  int

	Result *optimization.Result
	Runs   int
	Reason optimization.FailureReason
	Error  string

	cancel context.CancelFunc
	done   chan struct{}
}

// JobView is the JSON form of a job.
type JobView struct {
	ID           string               `json:"job_id"`
	Objective    string               `json:"objective"`
	Method       string               `json:"method"`
	Status       JobStatus            `json:"status"`
	StartTime    string               `json:"start_time"`
	EndTime      string               `json:"end_time,omitempty"`
	LastUpdate   string               `json:"last_update"`
	Iteration    int                  `json:"iteration"`
	Value        *float64             `json:"value,omitempty"`
	GradientNorm *float64             `json:"gradient_norm,omitempty"`
	Evaluations  int                  `json:"evaluations"`
	Runs         int                  `json:"runs,omitempty"`
	Result       *optimization.Result `json:"result,omitempty"`
	Reason       string               `json:"failure_reason,omitempty"`
	Error        string               `json:"error,omitempty"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (j *Job) view() JobView {
	v := JobView{
		ID:           j.ID,
		Objective:    j.Objective,
		Method:       j.Method,
		Status:       j.Status,
		StartTime:    j.StartTime.Format(time.RFC3339),
		LastUpdate:   j.LastUpdated.Format(time.RFC3339),
		Iteration:    j.Iteration,
		Value:        finite(j.Value),
		GradientNorm: finite(j.GradientNorm),
		Evaluations:  j.Evaluations,
		Runs:         j.Runs,
		Error:        j.Error,
	}
	if j.EndTime != nil {
		v.EndTime = j.EndTime.Format(time.RFC3339)
	}
	if j.Reason != optimization.ReasonNone {
		v.Reason = j.Reason.String()
	}
	// encoding/json rejects NaN, which a run failing at its start point carries.
	if j.Result != nil && finite(j.Result.Value) != nil && finite(j.Result.GradientNorm) != nil {
		v.Result = j.Result
	}
	return v
}

// plan is a validated request ready to run.
type plan struct {
	objective *objectives.Objective
	oracle    optimization.Oracle
	settings  solver.Settings
	starts    [][]float64
	method    string
}

// newPlan validates req. Every error it returns is a 400.
func (s *Server) newPlan(req *SolveRequest) (*plan, error) {
	p, err := s.buildPlan(req)
	if err != nil {
		return nil, apperrors.Wrap(err, "invalid solve request").
			WithOperation("new_plan").WithComponent("server").WithStatus(http.StatusBadRequest)
	}
	return p, nil
}

func (s *Server) buildPlan(req *SolveRequest) (*plan, error) {
	if req.Objective == "" {
		return nil, fmt.Errorf("objective is required")
	}
	obj, err := objectives.Lookup(req.Objective)
	if err != nil {
		return nil, err
	}
	oracle, err := obj.Oracle()
	if err != nil {
		return nil, err
	}

	settings := s.defaults
	// Decoding into a shared Bounds would overwrite the catalog's slices.
	settings.Bounds = nil
	if len(req.Settings) > 0 {
		if err := json.Unmarshal(req.Settings, &settings); err != nil {
			return nil, fmt.Errorf("invalid settings: %w", err)
		}
	}
	if len(req.Bounds) > 0 {
		b, err := parseBounds(req.Bounds)
		if err != nil {
			return nil, err
		}
		settings.Bounds = b
	}
	if settings.Bounds == nil && obj.Bounds != nil {
		if settings.Bounds, err = projection.NewBounds(obj.Bounds.Lower, obj.Bounds.Upper); err != nil {
			return nil, err
		}
	}
	if settings.Bounds != nil && settings.Bounds.Dim() != obj.Dim {
		return nil, fmt.Errorf("bounds have %d entries, objective %s has dimension %d",
			settings.Bounds.Dim(), obj.Name, obj.Dim)
	}

	starts := req.Starts
	if len(starts) == 0 {
		start := req.Start
		if start == nil {
			start = obj.StartPoint()
		}
		starts = [][]float64{start}
	}
	for _, x0 := range starts {
		if len(x0) != obj.Dim {
			return nil, fmt.Errorf("start point has %d entries, objective %s has dimension %d",
				len(x0), obj.Name, obj.Dim)
		}
	}

	slv, err := solver.New(settings)
	if err != nil {
		return nil, err
	}
	return &plan{objective: obj, oracle: oracle, settings: settings, starts: starts, method: slv.Method()}, nil
}

func parseBounds(pairs [][]float64) (*projection.Bounds, error) {
	lower := make([]float64, len(pairs))
	upper := make([]float64, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("invalid bounds format, expected [[min1, max1], [min2, max2], ...]")
		}
		lower[i], upper[i] = p[0], p[1]
	}
	return projection.NewBounds(lower, upper)
}

// startJob registers a job for p and runs it in the background.
func (s *Server) startJob(p *plan) *Job {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.Solver.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.cfg.Solver.JobTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	now := time.Now()
	job := &Job{
		ID:           uuid.NewString(),
		Objective:    p.objective.Name,
		Method:       p.method,
		Status:       StatusPending,
		StartTime:    now,
		LastUpdated:  now,
		Value:        math.NaN(),
		GradientNorm: math.NaN(),
		Runs:         len(p.starts),
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	s.wg.Add(1)
	go s.runJob(ctx, job, p)
	return job
}

func (s *Server) runJob(ctx context.Context, job *Job, p *plan) {
	defer s.wg.Done()
	defer close(job.done)
	defer job.cancel()

	logger := s.logger.WithFields(map[string]interface{}{
		"job_id":    job.ID,
		"objective": job.Objective,
		"method":    job.Method,
	})

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		s.finishJob(job, nil, ctx.Err(), logger)
		return
	}

	if !s.setRunning(job) {
		s.finishJob(job, nil, context.Canceled, logger)
		return
	}

	observers := optimization.Observers{s.progress(job), logging.EventLogger(logger)}
	if s.metrics != nil {
		observers = append(observers, s.metrics)
	}
	settings := p.settings
	settings.Observer = observers

	var (
		res *optimization.Result
		err error
	)
	if len(p.starts) > 1 {
		var ms *solver.MultiStartResult
		ms, err = solver.MultiStart(ctx, settings, p.oracle, p.starts, s.cfg.Solver.Workers)
		if ms != nil && ms.Best != nil {
			res = ms.Best
		} else if ms != nil && len(ms.Runs) > 0 {
			res = ms.Runs[0]
		}
	} else {
		var slv *solver.Solver
		if slv, err = solver.New(settings); err == nil {
			res, err = slv.Minimize(ctx, p.oracle, p.starts[0])
		}
	}
	s.finishJob(job, res, err, logger)
}

func (s *Server) setRunning(job *Job) bool {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if job.Status != StatusPending {
		return false
	}
	job.Status = StatusRunning
	job.LastUpdated = time.Now()
	return true
}

// progress mirrors solver events into the job record.
func (s *Server) progress(job *Job) optimization.Observer {
	return optimization.ObserverFunc(func(e optimization.Event) {
		if e.Kind != optimization.EventIteration {
			return
		}
		s.jobsMu.Lock()
		defer s.jobsMu.Unlock()
		// Multi-start runs report concurrently; keep the best value seen.
		if !math.IsNaN(job.Value) && e.Value > job.Value {
			return
		}
		job.Iteration = e.Iteration
		job.Value = e.Value
		job.GradientNorm = e.GradientNorm
		job.Evaluations = e.Evaluations
		job.LastUpdated = time.Now()
	})
}

func (s *Server) finishJob(job *Job, res *optimization.Result, err error, logger *logging.Logger) {
	s.jobsMu.Lock()
	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now
	job.Result = res
	if res != nil {
		job.Iteration = res.Iterations
		job.Value = res.Value
		job.GradientNorm = res.GradientNorm
		job.Evaluations = res.Evaluations
	}

	switch {
	case job.Status == StatusCancelled:
		job.Reason = optimization.Cancelled
	case err == nil:
		job.Status = StatusCompleted
	default:
		job.Status = StatusFailed
		job.Reason = optimization.ReasonOf(err)
		if job.Reason == optimization.ReasonNone && ctxErr(err) {
			job.Reason = optimization.Cancelled
		}
		job.Error = err.Error()
	}
	status := job.Status
	s.jobsMu.Unlock()

	if s.metrics != nil {
		s.metrics.JobFinished(job.Objective, string(status))
	}
	if status == StatusFailed {
		logger.WithError(err).Warn("Solve job failed")
		return
	}
	logger.Info("Solve job finished", map[string]interface{}{"status": string(status)})
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// cancelJob requests cancellation of a pending or running job.
func (s *Server) cancelJob(id string) (*Job, error) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, notFound(id, "cancel_job")
	}
	if job.Status.Terminal() {
		return nil, apperrors.Errorf("cannot cancel job with status: %s", job.Status).
			WithOperation("cancel_job").WithComponent("server").WithStatus(http.StatusConflict)
	}
	job.cancel()
	job.Status = StatusCancelled
	job.LastUpdated = time.Now()

	s.logger.Info("Solve job cancelled", map[string]interface{}{"job_id": id})
	return job, nil
}

func (s *Server) jobView(id string) (JobView, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return JobView{}, notFound(id, "job_view")
	}
	return job.view(), nil
}

func notFound(id, op string) error {
	return apperrors.Wrapf(errJobNotFound, "job %s", id).
		WithOperation(op).WithComponent("server").WithStatus(http.StatusNotFound)
}
