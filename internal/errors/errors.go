// Package errors provides request errors for the solve service. An Error
// records where in the service it was raised, the HTTP status it maps to and
// the call stack at the point it entered the package.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Error is a failure of one service operation.
type Error struct {
	Err       error
	Message   string
	Operation string
	Component string
	// Status is the HTTP status for the error; zero maps to 500.
	Status int
	Stack  []string
}

// Error formats as "component.operation: message: cause", leaving out the
// parts that are empty.
func (e *Error) Error() string {
	var parts []string
	if where := e.where(); where != "" {
		parts = append(parts, where)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) where() string {
	switch {
	case e.Component != "" && e.Operation != "":
		return e.Component + "." + e.Operation
	case e.Component != "":
		return e.Component
	default:
		return e.Operation
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithStatus sets the HTTP status the error is answered with.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// StackTrace returns one "function\n\tfile:line" entry per frame.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// New returns an error with msg and the caller's stack.
func New(msg string) *Error {
	return &Error{Message: msg, Stack: callers()}
}

// Errorf is New with a formatted message.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Stack: callers()}
}

// Wrap returns a new Error around err, or nil when err is nil. The stack of
// the innermost Error in the chain is kept; otherwise the caller's is taken.
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	e := &Error{Err: err, Message: msg}
	var inner *Error
	if stderrors.As(err, &inner) {
		e.Stack, e.Status = inner.Stack, inner.Status
	} else {
		e.Stack = callers()
	}
	return e
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// StatusOf returns the HTTP status of the outermost Error in err's chain
// that has one, and 500 when there is none.
func StatusOf(err error) int {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Status != 0 {
			return e.Status
		}
		err = stderrors.Unwrap(err)
	}
	return http.StatusInternalServerError
}

// StackOf returns the stack of the first Error in err's chain.
func StackOf(err error) []string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Stack
	}
	return nil
}

func callers() []string {
	var pcs [32]uintptr
	// Skip runtime.Callers, callers and the constructor.
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	var stack []string
	for {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", f.Function, f.File, f.Line))
		}
		if !more {
			return stack
		}
	}
}

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }
