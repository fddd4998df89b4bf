// Package common defines shared sentinel errors used across the layers of
// the backup distribution service. Callers should use errors.Is to match
// these values.
package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// Request classification errors, translated 1:1 to HTTP statuses by the
	// API layer.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")

	// Dependency errors (storage or repository unreachable). Used by the
	// readiness probe and refused operations, never for normal request flow.
	ErrUnavailable = errors.New("unavailable")
)

// ValidationError carries field-level detail for a malformed request.
// It matches ErrInvalidInput under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation error"
	}
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, field := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError builds a ValidationError for a single offending field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
