package optimization

// EventKind identifies a solver event.
type EventKind string

const (
	EventStarted          EventKind = "started"
	EventIteration        EventKind = "iteration"
	EventCurvatureSkipped EventKind = "curvature_skipped"
	EventDirectionReset   EventKind = "direction_reset"
	EventConverged        EventKind = "converged"
	EventFailed           EventKind = "failed"
)

// Event is emitted by the solver at notable points of a run. The core never
// formats or logs these itself.
type Event struct {
	Kind         EventKind
	Method       string
	Iteration    int
	Value        float64
	GradientNorm float64
	Step         float64
	Evaluations  int
	Reason       FailureReason
	Detail       string
}

// Observer receives solver events. Observers are called synchronously from the
// solver loop and must not retain the event past the call.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers, skipping nil entries.
type Observers []Observer

// Observe forwards e to every observer in order.
func (obs Observers) Observe(e Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(e)
		}
	}
}

// discard drops every event.
type discard struct{}

func (discard) Observe(Event) {}

// Discard is an Observer that ignores events.
var Discard Observer = discard{}
