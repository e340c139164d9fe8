package logging

import (
	"github.com/copyleftdev/descent/internal/optimization"
)

// EventLogger returns an observer that logs solver events. Iterations and
// skipped curvature updates are logged at debug level, resets at info,
// failures at warn.
func EventLogger(logger *Logger) optimization.Observer {
	return optimization.ObserverFunc(func(e optimization.Event) {
		fields := map[string]interface{}{
			"method":        e.Method,
			"iteration":     e.Iteration,
			"value":         e.Value,
			"gradient_norm": e.GradientNorm,
			"evaluations":   e.Evaluations,
		}
		if e.Step != 0 {
			fields["step"] = e.Step
		}
		if e.Detail != "" {
			fields["detail"] = e.Detail
		}

		switch e.Kind {
		case optimization.EventIteration:
			logger.Debug("Solver iteration", fields)
		case optimization.EventCurvatureSkipped:
			logger.Debug("Curvature update skipped", fields)
		case optimization.EventDirectionReset:
			logger.Info("Search direction reset to steepest descent", fields)
		case optimization.EventStarted:
			logger.Info("Solver started", fields)
		case optimization.EventConverged:
			logger.Info("Solver converged", fields)
		case optimization.EventFailed:
			fields["reason"] = e.Reason.String()
			logger.Warn("Solver failed", fields)
		}
	})
}
