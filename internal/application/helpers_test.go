package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/testfixtures"
)

func newStack(t *testing.T, policy application.Policy) *testfixtures.Stack {
	t.Helper()
	return testfixtures.NewServiceFactory().NewStack(policy)
}

func createReservation(t *testing.T, stack *testfixtures.Stack, principal application.Principal, room string, start, end time.Time) application.Reservation {
	t.Helper()
	input := testfixtures.NewReservationFixture(
		testfixtures.WithOwner(principal.UserID),
		testfixtures.WithRoom("3", room),
		testfixtures.WithWindow(start, end),
	).Input()
	created, err := stack.Service.CreateReservation(context.Background(), application.CreateReservationParams{
		Principal: principal,
		Input:     input,
	})
	if err != nil {
		t.Fatalf("CreateReservation returned error: %v", err)
	}
	return created
}

// ongoingReservation creates, approves and starts a reservation of room 301, leaving the clock
// at start.
func ongoingReservation(t *testing.T, stack *testfixtures.Stack, start, end time.Time) application.Reservation {
	t.Helper()
	ctx := context.Background()
	created := createReservation(t, stack, testfixtures.Student, "301", start, end)
	if _, err := stack.Service.Approve(ctx, testfixtures.FloorStaff, created.ID); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	stack.Factory.Clock.Set(start)
	started, err := stack.Service.Start(ctx, testfixtures.Student, created.ID)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	return started
}

func expectError(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func expectValidation(t *testing.T, err error, field string) {
	t.Helper()
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors[field]; !ok {
		t.Fatalf("expected error on field %q, got %v", field, vErr.FieldErrors)
	}
}
