// Package domain defines core types, interfaces, and errors for the
// semantic model analyzer.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// InvalidTransitionError indicates a job lifecycle contract violation,
// such as starting a job that is not PENDING.
type InvalidTransitionError struct {
	Message string
}

func (e *InvalidTransitionError) Error() string { return e.Message }

// SessionActiveError indicates a finding already has a non-terminal
// autofix session.
type SessionActiveError struct {
	Message string
}

func (e *SessionActiveError) Error() string { return e.Message }

// UnavailableError indicates an upstream collaborator failure (rule
// catalog, model introspection, remote query engine).
type UnavailableError struct {
	Message string
}

func (e *UnavailableError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidTransition creates an InvalidTransitionError with a formatted message.
func ErrInvalidTransition(format string, args ...interface{}) *InvalidTransitionError {
	return &InvalidTransitionError{Message: fmt.Sprintf(format, args...)}
}

// ErrSessionActive creates a SessionActiveError with a formatted message.
func ErrSessionActive(format string, args ...interface{}) *SessionActiveError {
	return &SessionActiveError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnavailable creates an UnavailableError with a formatted message.
func ErrUnavailable(format string, args ...interface{}) *UnavailableError {
	return &UnavailableError{Message: fmt.Sprintf(format, args...)}
}
