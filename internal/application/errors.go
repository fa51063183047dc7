package application

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrForbidden is returned when the acting principal lacks the role or ownership an operation needs.
	ErrForbidden = errors.New("application: forbidden")
	// ErrInvalidTransition is returned when a reservation is not in a status that permits the operation,
	// including when a concurrent transition won the race.
	ErrInvalidTransition = errors.New("application: invalid transition")
	// ErrAlreadyTerminal is returned when a reservation has already reached a terminal status.
	ErrAlreadyTerminal = fmt.Errorf("%w: reservation already terminal", ErrInvalidTransition)
	// ErrTooEarly is returned when a reservation is started before its early-start window opens.
	ErrTooEarly = errors.New("application: too early")
	// ErrConflict is returned when a window overlaps an active reservation of the same room.
	ErrConflict = errors.New("application: conflict")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}
