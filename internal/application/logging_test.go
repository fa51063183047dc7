package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrForbidden, "forbidden"},
		{fmt.Errorf("load: %w", ErrNotFound), "not_found"},
		{ErrAlreadyTerminal, "already_terminal"},
		{ErrInvalidTransition, "invalid_transition"},
		{ErrTooEarly, "too_early"},
		{ErrConflict, "conflict"},
		{context.Canceled, "canceled"},
		{newValidationError("end", "required"), "validation"},
		{errors.New("disk full"), "unexpected"},
	}

	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
