package shared

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a referenced entity is absent.
var ErrNotFound = errors.New("not found")

// NotFoundf wraps ErrNotFound with context about the missing entity.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ValidationError flags malformed or out-of-range caller input. It is
// always caller-correctable and never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// InvalidStateError flags an operation that is not legal for the entity's
// current lifecycle state.
type InvalidStateError struct {
	Entity string
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: cannot %s while %s", e.Entity, e.Op, e.State)
}

// InvalidState builds an InvalidStateError.
func InvalidState(entity, state, op string) error {
	return &InvalidStateError{Entity: entity, State: state, Op: op}
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var v *InvalidStateError
	return errors.As(err, &v)
}

// ConsistencyError reports a derived-total invariant that failed to hold
// after a mutation. It indicates a bug, not caller error; the enclosing
// transaction must roll back and the error must never be swallowed.
type ConsistencyError struct {
	Msg string
}

func (e *ConsistencyError) Error() string { return "consistency: " + e.Msg }

// Consistencyf builds a ConsistencyError.
func Consistencyf(format string, args ...any) error {
	return &ConsistencyError{Msg: fmt.Sprintf(format, args...)}
}

// IsConsistency reports whether err is a ConsistencyError.
func IsConsistency(err error) bool {
	var v *ConsistencyError
	return errors.As(err, &v)
}
