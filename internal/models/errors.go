package models

import "fmt"

// ValidationError indicates malformed input. The caller must fix the request
// and resubmit; values are never silently coerced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidStateError indicates an operation attempted from a session status
// where it is not legal.
type InvalidStateError struct {
	SessionID int64
	Status    string
	Op        string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s session %d in status %s", e.Op, e.SessionID, e.Status)
}

// NewInvalidStateError builds an InvalidStateError for an operation.
func NewInvalidStateError(sessionID int64, status, op string) *InvalidStateError {
	return &InvalidStateError{SessionID: sessionID, Status: status, Op: op}
}

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Entity, e.ID)
}

// NewNotFoundError builds a NotFoundError for an entity.
func NewNotFoundError(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConcurrencyConflict indicates an optimistic status-update precondition
// failed: the session changed between read and write. Callers retry once by
// re-reading; a move that is no longer legal surfaces as InvalidStateError,
// and a second lost race surfaces the conflict itself.
type ConcurrencyConflict struct {
	SessionID int64
	Expected  string
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("concurrent update on session %d (expected status %s)", e.SessionID, e.Expected)
}

// NewConcurrencyConflict builds a ConcurrencyConflict.
func NewConcurrencyConflict(sessionID int64, expected string) *ConcurrencyConflict {
	return &ConcurrencyConflict{SessionID: sessionID, Expected: expected}
}
