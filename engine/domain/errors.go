package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrExternal = errors.New("external dependency failed")
)

// Validation sentinels.
var (
	ErrEmptyQuestion     = errors.New("question is empty")
	ErrInvalidTopK       = errors.New("top_k out of range")
	ErrInvalidThreshold  = errors.New("similarity threshold out of range")
	ErrInvalidRole       = errors.New("invalid message role")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidStatus     = errors.New("invalid job status")
	ErrInvalidTransition = errors.New("illegal job status transition")
	ErrInvalidProgress   = errors.New("invalid job progress")
	ErrMissingJobError   = errors.New("failed job requires an error message")
	ErrInvalidChecksum   = errors.New("invalid checksum")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound creates a NotFoundError.
func NotFound(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// ConflictError reports a duplicate unique key.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Resource, e.Key)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Conflict creates a ConflictError.
func Conflict(resource, key string) *ConflictError {
	return &ConflictError{Resource: resource, Key: key}
}

// ExternalError marks a failure of an embedding, index or answer service.
type ExternalError struct {
	Service string
	Err     error
}

func (e *ExternalError) Error() string { return e.Service + ": " + e.Err.Error() }

func (e *ExternalError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrExternal) match any ExternalError.
func (e *ExternalError) Is(target error) bool { return target == ErrExternal }

// External wraps err as an ExternalError, or returns nil for a nil err.
func External(service string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{Service: service, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
