// Package fault defines the error taxonomy shared by flowrig components.
//
// Single-item operations return the specific type ([ConfigError],
// [ProbeExhaustedError], [StartError], [StopError]). Batch operations
// (start all, stop all, resource init, context teardown) always report
// through a [CompositeError] whose children are preserved in order and are
// reachable with errors.Is / errors.As.
package fault

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAlreadyClosed is returned when a test environment is torn down twice.
var ErrAlreadyClosed = errors.New("flowrig: context is already closed")

// ConfigError means a required field is missing or invalid. It is never retried.
type ConfigError struct {
	Field  string
	Reason string
}

// Configf builds a ConfigError for field.
func Configf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// ProbeExhaustedError wraps the last check failure after the retry budget
// was spent.
type ProbeExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *ProbeExhaustedError) Error() string {
	return fmt.Sprintf("probe failed after %d attempt(s) in %s: %v",
		e.Attempts, e.Elapsed.Round(time.Millisecond), e.Last)
}

func (e *ProbeExhaustedError) Unwrap() error { return e.Last }

// StartError means a process could not be started (non-zero exit or an
// engine-reported failure).
type StartError struct {
	Target string
	Err    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Target, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// StopError means a process could not be removed.
type StopError struct {
	ID  string
	Err error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("failed to stop %s: %v", e.ID, e.Err)
}

func (e *StopError) Unwrap() error { return e.Err }

// CompositeError is an ordered list of child failures. Children are never
// dropped or collapsed into each other.
type CompositeError struct {
	Op     string
	Errors []error
}

// NewComposite returns a CompositeError for op holding the non-nil errs, or
// nil when there are none.
func NewComposite(op string, errs ...error) error {
	children := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			children = append(children, err)
		}
	}
	if len(children) == 0 {
		return nil
	}
	return &CompositeError{Op: op, Errors: children}
}

func (e *CompositeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(strings.ReplaceAll(err.Error(), "\n", "\n    "))
	}
	return b.String()
}

// Unwrap exposes every child to errors.Is and errors.As.
func (e *CompositeError) Unwrap() []error { return e.Errors }

// Len returns the number of children.
func (e *CompositeError) Len() int { return len(e.Errors) }
