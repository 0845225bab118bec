package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass classifies an error for the step failure policy.
type ErrorClass string

const (
	// ErrorClassPrecondition indicates the environment cannot support a run
	// at all (unsupported distribution, missing privilege). Checked before
	// the first step; always aborts.
	ErrorClassPrecondition ErrorClass = "precondition"

	// ErrorClassTransient indicates a temporary failure reaching a remote
	// resource (index refresh, signing key download).
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassNotFound indicates one or more package names are unknown to
	// the backend.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassConflict indicates an install would violate a held or pinned
	// constraint.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassTimeout indicates a bounded-wait deadline expired. Treated
	// like any other failed action and never retried within the same run.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassConfigWrite indicates a repository or pin file could not be
	// written (permissions, disk full). Fails the step but not the run.
	ErrorClassConfigWrite ErrorClass = "config_write"

	// ErrorClassInternal indicates an unclassified engine failure.
	ErrorClassInternal ErrorClass = "internal"
)

// Fatal reports whether the class aborts the whole run regardless of the
// step's own fatality flag.
func (c ErrorClass) Fatal() bool {
	return c == ErrorClassPrecondition
}

// FailsStep reports whether the class marks the step failed rather than
// degraded to a warning.
func (c ErrorClass) FailsStep() bool {
	return c == ErrorClassConfigWrite
}

// EngineError is a classified error with step and operation context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification driving the failure policy.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Step is the step name the error occurred in, if known.
	Step string `json:"step,omitempty"`

	// Operation is the backend or registry operation that failed.
	Operation string `json:"operation,omitempty"`

	// Packages lists the offending package names, if applicable.
	Packages []string `json:"packages,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	if e.Operation != "" {
		fmt.Fprintf(&b, " (operation=%s)", e.Operation)
	}
	if len(e.Packages) > 0 {
		fmt.Fprintf(&b, " (packages=%s)", strings.Join(e.Packages, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two engine errors match when
// their classes match.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithStep adds step context to an error.
func (e *EngineError) WithStep(step string) *EngineError {
	e.Step = step
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithPackages records the offending package names on the error.
func (e *EngineError) WithPackages(names ...string) *EngineError {
	e.Packages = append(e.Packages, names...)
	return e
}

// NewPreconditionError creates a new precondition error.
func NewPreconditionError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPrecondition, Message: message, Err: err}
}

// NewTransientError creates a new transient network error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewNotFoundError creates a new package-not-found error.
func NewNotFoundError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassNotFound, Message: message, Err: err}
}

// NewConflictError creates a new package-conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewTimeoutError creates a new bounded-wait timeout error.
func NewTimeoutError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTimeout, Message: message, Err: err}
}

// NewConfigWriteError creates a new configuration write error.
func NewConfigWriteError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConfigWrite, Message: message, Err: err}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassInternal, Message: message, Err: err}
}

// ClassOf returns the class of err, or ErrorClassInternal when err carries
// no classification.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassInternal
}

// IsPrecondition returns true if the error is classified as a precondition
// failure.
func IsPrecondition(err error) bool {
	return ClassOf(err) == ErrorClassPrecondition
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return ClassOf(err) == ErrorClassTransient
}

// IsNotFound returns true if the error is classified as package-not-found.
func IsNotFound(err error) bool {
	return ClassOf(err) == ErrorClassNotFound
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return ClassOf(err) == ErrorClassConflict
}

// IsTimeout returns true if the error is classified as a timeout.
func IsTimeout(err error) bool {
	return ClassOf(err) == ErrorClassTimeout
}

// IsConfigWrite returns true if the error is classified as a configuration
// write failure.
func IsConfigWrite(err error) bool {
	return ClassOf(err) == ErrorClassConfigWrite
}
