package application

import (
	"errors"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"field": "invalid"}}
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected consistent message for populated error, got %q", got)
	}
}

func TestValidationError_Add(t *testing.T) {
	t.Parallel()

	vErr := &ValidationError{}
	if vErr.HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	vErr.add("end", "first")
	vErr.add("end", "second")
	if got := vErr.FieldErrors["end"]; got != "first" {
		t.Fatalf("expected first message to be kept, got %q", got)
	}
	if !vErr.HasErrors() {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestErrAlreadyTerminalIsInvalidTransition(t *testing.T) {
	t.Parallel()

	if !errors.Is(ErrAlreadyTerminal, ErrInvalidTransition) {
		t.Fatalf("expected ErrAlreadyTerminal to match ErrInvalidTransition")
	}
	if errors.Is(ErrInvalidTransition, ErrAlreadyTerminal) {
		t.Fatalf("expected plain invalid transition not to be reported as terminal")
	}
}
