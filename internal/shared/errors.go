package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("not found")

// ValidationError carries field-keyed validation failures. Every precondition
// breach in the posting core (invalid state transitions, cross-company
// references, unbalanced moves, lock-date violations, malformed schedules,
// missing configuration) surfaces as this type before any mutation happens.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Validationf builds a single-field validation error with a formatted message.
func Validationf(field, format string, args ...any) *ValidationError {
	return NewValidationError(field, fmt.Sprintf(format, args...))
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// ConflictError signals that a record is still referenced elsewhere, e.g.
// deleting an account that has move lines. The store-level integrity
// violation is preserved as the cause for logging.
type ConflictError struct {
	Entity string
	Reason string
	cause  error
}

// NewConflictError wraps a referential-integrity failure.
func NewConflictError(entity, reason string, cause error) *ConflictError {
	return &ConflictError{Entity: entity, Reason: reason, cause: cause}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return e.cause
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
