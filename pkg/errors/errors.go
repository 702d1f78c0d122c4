package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so cloned sentinels compare equal.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WithDetails returns a copy carrying structured remediation details.
func (e *Error) WithDetails(details map[string]any) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Details = details
	return &clone
}

// Predefined errors for common scenarios.
var (
	ErrNotFound               = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict               = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation             = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal               = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrGeneration             = New("GENERATION_ERROR", http.StatusUnprocessableEntity, "matchup universe cannot meet games-per-team target")
	ErrConstraintsUnsatisfied = New("CONSTRAINTS_UNSATISFIED", http.StatusOK, "schedule still violates hard constraints")
	ErrJob                    = New("JOB_ERROR", http.StatusInternalServerError, "optimization job failed")
	ErrJobNotFinished         = New("JOB_NOT_FINISHED", http.StatusConflict, "optimization job has not finished")
	ErrQueueUnavailable       = New("QUEUE_UNAVAILABLE", http.StatusServiceUnavailable, "optimization queue unavailable")
	ErrCacheMiss              = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrExportExpired          = New("EXPORT_EXPIRED", http.StatusGone, "export link expired")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
