// Package errors provides custom error types for the regdelta system.
// These errors enable better error handling, programmatic error checking,
// and improved debugging throughout the application.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the regdelta system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrMissingPriorSnapshot indicates that no snapshot exists for the
	// prior date; callers treat it as the "mark all new" path, not a failure
	ErrMissingPriorSnapshot = errors.New("prior snapshot missing")

	// ErrSchemaMismatch indicates that a snapshot does not carry the key
	// field declared by the schema; always fatal for a run
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrDuplicateKey indicates that a snapshot contains more than one
	// record for the same key
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrCorruptRecord indicates a row that could not be parsed
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrPartialPersist indicates that one of the two persistence sinks
	// failed while the other committed
	ErrPartialPersist = errors.New("partial persist")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrReadOnly indicates an attempt to modify a read-only resource
	ErrReadOnly = errors.New("read only")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// SchemaMismatchError reports a snapshot whose columns do not satisfy
// the declared schema, most commonly a missing key field.
type SchemaMismatchError struct {
	Snapshot string
	Field    string
	Message  string
}

// Error implements the error interface
func (e *SchemaMismatchError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema mismatch in snapshot %s: field %q %s", e.Snapshot, e.Field, e.Message)
	}
	return fmt.Sprintf("schema mismatch in snapshot %s: %s", e.Snapshot, e.Message)
}

// Is implements errors.Is support
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// NewSchemaMismatchError creates a new SchemaMismatchError
func NewSchemaMismatchError(snapshot, field, message string) *SchemaMismatchError {
	return &SchemaMismatchError{Snapshot: snapshot, Field: field, Message: message}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// PersistError represents a failure in one of the change log sinks
type PersistError struct {
	Sink    string // "artifact" or "store"
	Date    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *PersistError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("persist to %s sink failed for %s: %v", e.Sink, e.Date, e.Err)
	}
	return fmt.Sprintf("persist to %s sink failed for %s: %s", e.Sink, e.Date, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *PersistError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *PersistError) Is(target error) bool {
	return target == ErrPartialPersist
}

// NewPersistError creates a new PersistError
func NewPersistError(sink, date string, err error) *PersistError {
	return &PersistError{Sink: sink, Date: date, Err: err}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{Component: component, Message: message, Err: err}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsSchemaMismatch checks if an error is a schema mismatch
func IsSchemaMismatch(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}

// IsPartialPersist checks if an error marks a partially persisted run
func IsPartialPersist(err error) bool {
	return errors.Is(err, ErrPartialPersist)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsCanceled checks if an error indicates cancellation
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// Wrapping helpers

// WrapIO wraps a filesystem error with operation and path context
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", operation, path, err)
}

// WrapParse wraps a parse error with format and source context
func WrapParse(format, source string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("parse %s from %s: %w", format, source, err)
}

// WrapDB wraps a database error with operation context
func WrapDB(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("database %s: %w", operation, err)
}

// WrapResource wraps an error with resource operation context
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	if id != "" {
		return fmt.Errorf("%s %s %s: %w", operation, resource, id, err)
	}
	return fmt.Errorf("%s %s: %w", operation, resource, err)
}
