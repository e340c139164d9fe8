package optimization

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FailureReason classifies why a run, or one of its primitives, failed.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	NonFiniteValue
	LineSearchFailure
	MaxIterationsExceeded
	InvalidBounds
	NotDescentDirection
	EvaluationFailed
	InvalidSettings
	Cancelled
)

var reasonNames = map[FailureReason]string{
	ReasonNone:            "",
	NonFiniteValue:        "non_finite_value",
	LineSearchFailure:     "line_search_failure",
	MaxIterationsExceeded: "max_iterations_exceeded",
	InvalidBounds:         "invalid_bounds",
	NotDescentDirection:   "not_descent_direction",
	EvaluationFailed:      "evaluation_failed",
	InvalidSettings:       "invalid_settings",
	Cancelled:             "cancelled",
}

func (r FailureReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// MarshalJSON encodes the reason by name.
func (r FailureReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a reason name.
func (r *FailureReason) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range reasonNames {
		if v == s {
			*r = k
			return nil
		}
	}
	return fmt.Errorf("unknown failure reason %q", s)
}

// Sentinels for errors.Is. An *Error matches a sentinel of the same reason.
var (
	ErrNonFiniteValue        = &Error{Reason: NonFiniteValue}
	ErrLineSearchFailure     = &Error{Reason: LineSearchFailure}
	ErrMaxIterationsExceeded = &Error{Reason: MaxIterationsExceeded}
	ErrInvalidBounds         = &Error{Reason: InvalidBounds}
	ErrNotDescentDirection   = &Error{Reason: NotDescentDirection}
	ErrEvaluationFailed      = &Error{Reason: EvaluationFailed}
	ErrInvalidSettings       = &Error{Reason: InvalidSettings}
	ErrCancelled             = &Error{Reason: Cancelled}
)

// Error represents a solver error with context
// that can be wrapped with additional information.
type Error struct {
	// Reason classifies the failure.
	Reason FailureReason
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Iteration, Point and Value describe the last accepted iterate, when known.
	Iteration int
	Point     []float64
	Value     float64
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = e.Reason.String()
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, msg)
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error carrying the same non-empty reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Reason != ReasonNone && t.Reason == e.Reason
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithIterate records the last accepted iterate on the error.
func (e *Error) WithIterate(iteration int, point []float64, value float64) *Error {
	e.Iteration = iteration
	e.Point = point
	e.Value = value
	return e
}

// NewError creates a new error with the given reason and message.
func NewError(reason FailureReason, message string) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
	}
}

// NewErrorf creates a new error with a formatted message.
func NewErrorf(reason FailureReason, format string, args ...interface{}) *Error {
	return &Error{
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, reason FailureReason, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Reason:  reason,
		Message: message,
		Err:     err,
	}
}

// ReasonOf returns the failure reason carried by err, or ReasonNone.
func ReasonOf(err error) FailureReason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

// IsOptimizationError checks if an error is of type Error.
// If the error is an optimization error, it returns the error and true.
// Otherwise, it returns nil and false.
func IsOptimizationError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*Error); ok {
		return e, true
	}
	return nil, false
}
