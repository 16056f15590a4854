// Package errs holds the error taxonomy shared by the order pipeline.
// Typed errors unwrap to one of the sentinels so callers can branch with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or incomplete client input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a reference to an entity that does not exist. Never retried.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks store, cache or queue infrastructure failures.
	ErrTransient = errors.New("transient infrastructure failure")
	// ErrMalformedMessage marks a queue message missing a required field. Dropped, never retried.
	ErrMalformedMessage = errors.New("malformed message")
)

// ValidationError describes which input field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError describes the missing entity.
type NotFoundError struct {
	Entity string
	ID     any
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v %s", e.Entity, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TransientError wraps an infrastructure failure with the operation that hit it.
type TransientError struct {
	Op    string
	Cause error
}

// NewTransientError creates a new TransientError.
func NewTransientError(op string, cause error) *TransientError {
	return &TransientError{Op: op, Cause: cause}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransient, e.Op, e.Cause)
}

// Unwrap exposes both the sentinel and the cause.
func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Cause}
}

// MalformedMessageError describes why a queue message was dropped.
type MalformedMessageError struct {
	Reason string
}

// NewMalformedMessageError creates a new MalformedMessageError.
func NewMalformedMessageError(reason string) *MalformedMessageError {
	return &MalformedMessageError{Reason: reason}
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedMessage, e.Reason)
}

func (e *MalformedMessageError) Unwrap() error {
	return ErrMalformedMessage
}
