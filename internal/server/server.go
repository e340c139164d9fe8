package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/descent/internal/config"
	apperrors "github.com/copyleftdev/descent/internal/errors"
	"github.com/copyleftdev/descent/internal/logging"
	"github.com/copyleftdev/descent/internal/metrics"
	"github.com/copyleftdev/descent/internal/objectives"
	"github.com/copyleftdev/descent/internal/optimization/solver"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

var errJobNotFound = errors.New("job not found")

// Server implements the HTTP and JSON-RPC server for the solve service.
// It manages solve jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg      *config.Config
	logger   Logger
	metrics  *metrics.Collector
	defaults solver.Settings

	jobs   map[string]*Job
	jobsMu sync.RWMutex // Protects jobs and every Job in it

	// sem bounds the number of jobs running at once.
	sem chan struct{}
	wg  sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics reports solver events and job outcomes to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// NewServer creates a new server instance with the given config and logger
// The logger parameter accepts any type that implements the Logger interface
func NewServer(cfg *config.Config, logger Logger, opts ...Option) *Server {
	workers := cfg.Solver.Workers
	if workers <= 0 {
		workers = 1
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		defaults: cfg.SolverSettings(),
		jobs:     make(map[string]*Job),
		sem:      make(chan struct{}, workers),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/minimize", s.handleMinimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/jobs/{id}", s.handleCancel)
		r.Post("/jobs/{id}/cancel", s.handleCancel)
		r.Get("/objectives", s.handleObjectives)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Close cancels every unfinished job and waits for them to stop.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	for _, job := range s.jobs {
		if !job.Status.Terminal() {
			job.cancel()
		}
	}
	s.jobsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Wait blocks until the job has stopped or ctx is done.
func (s *Server) Wait(ctx context.Context, id string) (JobView, error) {
	s.jobsMu.RLock()
	job, ok := s.jobs[id]
	s.jobsMu.RUnlock()
	if !ok {
		return JobView{}, notFound(id, "wait")
	}
	select {
	case <-job.done:
	case <-ctx.Done():
		return JobView{}, ctx.Err()
	}
	return s.jobView(id)
}

// start validates req and launches a job.
func (s *Server) start(req *SolveRequest) (JobView, error) {
	p, err := s.newPlan(req)
	if err != nil {
		return JobView{}, err
	}
	job := s.startJob(p)
	s.logger.Info("Solve job accepted", map[string]interface{}{
		"job_id":    job.ID,
		"objective": p.objective.Name,
		"method":    p.method,
		"starts":    len(p.starts),
	})
	return s.jobView(job.ID)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

// fail answers with the status carried by err, 500 when it has none.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logServerError(err, map[string]interface{}{"method": r.Method, "path": r.URL.Path})
	}
	writeError(w, status, err)
}

func (s *Server) logServerError(err error, fields map[string]interface{}) {
	fields["error"] = err.Error()
	if stack := apperrors.StackOf(err); len(stack) > 0 {
		fields["stack"] = stack
	}
	s.logger.Error("Request failed", fields)
}

// handleMinimize handles POST /api/v1/minimize for starting a new solve job
func (s *Server) handleMinimize(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, apperrors.Wrap(err, "invalid request body").
			WithOperation("minimize").WithComponent("server").WithStatus(http.StatusBadRequest))
		return
	}

	view, err := s.start(&req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.jobView(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleCancel handles DELETE /api/v1/jobs/{id} and POST /api/v1/jobs/{id}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.cancelJob(id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": id,
		"status": "cancellation requested",
	})
}

// handleObjectives handles GET /api/v1/objectives
func (s *Server) handleObjectives(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, objectives.All())
}
