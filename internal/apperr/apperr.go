package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. Every typed error below reports its kind through Is, so callers
// can branch with errors.Is(err, apperr.ErrNetwork) regardless of wrapping.
var (
	ErrValidation             = errors.New("validation error")
	ErrNetwork                = errors.New("network error")
	ErrAuth                   = errors.New("authentication error")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrServerRejection        = errors.New("rejected by server")
	ErrNotFound               = errors.New("not found")
)

// ValidationError holds field-level messages for input rejected before any
// network call.
type ValidationError struct {
	Fields map[string]string
}

// Validation creates a ValidationError for a single field
func Validation(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a message for field, keeping the first message per field
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// OrNil returns nil when no field failed
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NetworkError is a transport-level failure. It is the only retryable kind.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// AuthError means the session is missing or was rejected by the backend
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication required: " + e.Reason
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// TransitionError is returned when a workflow action is attempted on a report
// that is not in the state the action requires.
type TransitionError struct {
	ReportID string
	From     string
	Action   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s report %s in state %s", e.Action, e.ReportID, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// ServerRejection is a well-formed request refused by server-side business rules
type ServerRejection struct {
	StatusCode int
	Reason     string
}

func (e *ServerRejection) Error() string {
	return fmt.Sprintf("rejected by server (status %d): %s", e.StatusCode, e.Reason)
}

func (e *ServerRejection) Is(target error) bool {
	return target == ErrServerRejection
}

// IsRetryable reports whether re-invoking the operation may succeed
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
