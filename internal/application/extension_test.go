package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/testfixtures"
)

func TestRequestExtensionCap(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		policy  application.Policy
		nextAt  *time.Time
		wantCap time.Time
	}{
		{name: "free room runs to closing", wantCap: testfixtures.At(17, 0)},
		{name: "next booking caps the extension", nextAt: ptr(testfixtures.At(16, 0)), wantCap: testfixtures.At(16, 0)},
		{name: "maximum extension", policy: application.Policy{MaxExtension: 30 * time.Minute}, wantCap: testfixtures.At(15, 30)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			stack := newStack(t, tc.policy)
			ongoing := ongoingReservation(t, stack, testfixtures.At(13, 0), testfixtures.At(15, 0))
			if tc.nextAt != nil {
				createReservation(t, stack, testfixtures.OtherStudent, "301", *tc.nextAt, tc.nextAt.Add(time.Hour))
			}

			stack.Factory.Clock.SetClock(14, 0)
			preview, err := stack.Service.PreviewExtension(ctx, testfixtures.Student, ongoing.ID)
			if err != nil {
				t.Fatalf("PreviewExtension returned error: %v", err)
			}
			if !preview.Equal(tc.wantCap) {
				t.Fatalf("expected preview %v, got %v", tc.wantCap, preview)
			}

			requested, err := stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "need more time")
			if err != nil {
				t.Fatalf("RequestExtension returned error: %v", err)
			}
			if requested.ExtensionStatus != application.ExtensionPending || !requested.ExtensionRequested {
				t.Fatalf("unexpected extension state %+v", requested)
			}
			if requested.ExtensionCap == nil || !requested.ExtensionCap.Equal(tc.wantCap) {
				t.Fatalf("expected cap %v, got %v", tc.wantCap, requested.ExtensionCap)
			}
			if requested.ExtendedEnd != nil || !requested.EffectiveEnd().Equal(testfixtures.At(15, 0)) {
				t.Fatalf("request must not move the effective end, got %+v", requested)
			}
		})
	}
}

func TestRequestExtensionWithoutRoom(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stack := newStack(t, application.Policy{})
	ongoing := ongoingReservation(t, stack, testfixtures.At(13, 0), testfixtures.At(15, 0))
	createReservation(t, stack, testfixtures.OtherStudent, "301", testfixtures.At(15, 0), testfixtures.At(16, 0))

	stack.Factory.Clock.SetClock(14, 0)
	preview, err := stack.Service.PreviewExtension(ctx, testfixtures.Student, ongoing.ID)
	if err != nil {
		t.Fatalf("PreviewExtension returned error: %v", err)
	}
	if !preview.Equal(testfixtures.At(15, 0)) {
		t.Fatalf("expected preview at the current end, got %v", preview)
	}

	_, err = stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "need more time")
	expectError(t, err, application.ErrConflict)

	stored, err := stack.Service.GetReservation(ctx, testfixtures.Student, ongoing.ID)
	if err != nil {
		t.Fatalf("GetReservation returned error: %v", err)
	}
	if stored.ExtensionStatus != application.ExtensionNone {
		t.Fatalf("failed request must leave no trace, got %q", stored.ExtensionStatus)
	}
}

func TestRequestExtensionPreconditions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stack := newStack(t, application.Policy{})
	ongoing := ongoingReservation(t, stack, testfixtures.At(13, 0), testfixtures.At(15, 0))

	_, err := stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "   ")
	expectValidation(t, err, "reason")

	_, err = stack.Service.RequestExtension(ctx, testfixtures.FloorStaff, ongoing.ID, "staff cannot ask")
	expectError(t, err, application.ErrForbidden)

	if _, err := stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "first"); err != nil {
		t.Fatalf("RequestExtension returned error: %v", err)
	}
	_, err = stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "second")
	expectError(t, err, application.ErrInvalidTransition)

	pending := createReservation(t, stack, testfixtures.Student, "302", testfixtures.At(15, 0), testfixtures.At(16, 0))
	_, err = stack.Service.RequestExtension(ctx, testfixtures.Student, pending.ID, "not started")
	expectError(t, err, application.ErrInvalidTransition)
}

func TestRequestExtensionConcurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stack := newStack(t, application.Policy{})
	ongoing := ongoingReservation(t, stack, testfixtures.At(13, 0), testfixtures.At(15, 0))

	const attempts = 2
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "race")
		}(i)
	}
	wg.Wait()

	succeeded, invalid := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, application.ErrInvalidTransition):
			invalid++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 || invalid != 1 {
		t.Fatalf("expected one success and one ErrInvalidTransition, got %d and %d", succeeded, invalid)
	}

	requests := 0
	for _, kind := range stack.Events.Kinds() {
		if kind == application.EventExtensionRequested {
			requests++
		}
	}
	if requests != 1 {
		t.Fatalf("expected a single extension_requested event, got %d", requests)
	}
}

func TestHandleExtension(t *testing.T) {
	t.Parallel()

	t.Run("approval extends the effective window", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		stack := newStack(t, application.Policy{})
		ongoing := ongoingReservation(t, stack, testfixtures.At(13, 0), testfixtures.At(15, 0))
		stack.Factory.Clock.SetClock(14, 0)
		if _, err := stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "need more time"); err != nil {
			t.Fatalf("RequestExtension returned error: %v", err)
		}

		_, err := stack.Service.HandleExtension(ctx, testfixtures.Student, ongoing.ID, application.ExtensionApprove)
		expectError(t, err, application.ErrForbidden)

		approved, err := stack.Service.HandleExtension(ctx, testfixtures.FloorStaff, ongoing.ID, application.ExtensionApprove)
		if err != nil {
			t.Fatalf("HandleExtension returned error: %v", err)
		}
		if approved.ExtensionStatus != application.ExtensionApproved || approved.ExtendedEnd == nil {
			t.Fatalf("unexpected approved extension %+v", approved)
		}
		if !approved.EffectiveEnd().Equal(testfixtures.At(17, 0)) {
			t.Fatalf("expected effective end 17:00, got %v", approved.EffectiveEnd())
		}

		_, err = stack.Service.CreateReservation(ctx, application.CreateReservationParams{
			Principal: testfixtures.OtherStudent,
			Input: testfixtures.NewReservationFixture(
				testfixtures.WithOwner(testfixtures.OtherStudent.UserID),
				testfixtures.WithWindow(testfixtures.At(15, 30), testfixtures.At(16, 0)),
			).Input(),
		})
		expectError(t, err, application.ErrConflict)

		owner := stack.Notifications.For(testfixtures.Student.UserID)
		if last := owner[len(owner)-1]; last.Kind != application.EventExtensionApproved {
			t.Fatalf("expected extension approval notification for owner, got %s", last.Kind)
		}
		staffKinds := map[application.EventKind]bool{}
		for _, n := range stack.Notifications.For(testfixtures.FloorStaff.UserID) {
			staffKinds[n.Kind] = true
		}
		if !staffKinds[application.EventExtensionRequested] {
			t.Fatalf("expected floor staff to hear about the request")
		}
	})

	t.Run("approval grants only the room left", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		stack := newStack(t, application.Policy{})
		ongoing := ongoingReservation(t, stack, testfixtures.At(13, 0), testfixtures.At(15, 0))
		stack.Factory.Clock.SetClock(14, 0)
		if _, err := stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "need more time"); err != nil {
			t.Fatalf("RequestExtension returned error: %v", err)
		}
		createReservation(t, stack, testfixtures.OtherStudent, "301", testfixtures.At(16, 0), testfixtures.At(17, 0))

		approved, err := stack.Service.HandleExtension(ctx, testfixtures.FloorStaff, ongoing.ID, application.ExtensionApprove)
		if err != nil {
			t.Fatalf("HandleExtension returned error: %v", err)
		}
		if !approved.EffectiveEnd().Equal(testfixtures.At(16, 0)) {
			t.Fatalf("expected extension clipped to 16:00, got %v", approved.EffectiveEnd())
		}
	})

	t.Run("approval with no room left fails", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		stack := newStack(t, application.Policy{})
		ongoing := ongoingReservation(t, stack, testfixtures.At(13, 0), testfixtures.At(15, 0))
		stack.Factory.Clock.SetClock(14, 0)
		if _, err := stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "need more time"); err != nil {
			t.Fatalf("RequestExtension returned error: %v", err)
		}
		createReservation(t, stack, testfixtures.OtherStudent, "301", testfixtures.At(15, 0), testfixtures.At(16, 0))

		_, err := stack.Service.HandleExtension(ctx, testfixtures.FloorStaff, ongoing.ID, application.ExtensionApprove)
		expectError(t, err, application.ErrConflict)

		stored, err := stack.Service.GetReservation(ctx, testfixtures.Student, ongoing.ID)
		if err != nil {
			t.Fatalf("GetReservation returned error: %v", err)
		}
		if stored.ExtensionStatus != application.ExtensionPending {
			t.Fatalf("failed approval must keep the request pending, got %q", stored.ExtensionStatus)
		}
	})

	t.Run("rejection blocks retries until cleared", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		stack := newStack(t, application.Policy{})
		ongoing := ongoingReservation(t, stack, testfixtures.At(13, 0), testfixtures.At(15, 0))
		if _, err := stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "first"); err != nil {
			t.Fatalf("RequestExtension returned error: %v", err)
		}
		rejected, err := stack.Service.HandleExtension(ctx, testfixtures.FloorStaff, ongoing.ID, application.ExtensionReject)
		if err != nil {
			t.Fatalf("HandleExtension returned error: %v", err)
		}
		if rejected.ExtensionStatus != application.ExtensionRejected || rejected.ExtendedEnd != nil {
			t.Fatalf("unexpected rejected extension %+v", rejected)
		}

		_, err = stack.Service.HandleExtension(ctx, testfixtures.FloorStaff, ongoing.ID, application.ExtensionReject)
		expectError(t, err, application.ErrInvalidTransition)

		_, err = stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "again")
		expectError(t, err, application.ErrInvalidTransition)

		_, err = stack.Service.ClearExtension(ctx, testfixtures.Student, ongoing.ID)
		expectError(t, err, application.ErrForbidden)
		if _, err := stack.Service.ClearExtension(ctx, testfixtures.FloorStaff, ongoing.ID); err != nil {
			t.Fatalf("ClearExtension returned error: %v", err)
		}
		if _, err := stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "again"); err != nil {
			t.Fatalf("RequestExtension after clear returned error: %v", err)
		}
	})

	t.Run("retry policy allows a new request after rejection", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		stack := newStack(t, application.Policy{AllowExtensionRetry: true})
		ongoing := ongoingReservation(t, stack, testfixtures.At(13, 0), testfixtures.At(15, 0))
		if _, err := stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "first"); err != nil {
			t.Fatalf("RequestExtension returned error: %v", err)
		}
		if _, err := stack.Service.HandleExtension(ctx, testfixtures.FloorStaff, ongoing.ID, application.ExtensionReject); err != nil {
			t.Fatalf("HandleExtension returned error: %v", err)
		}
		if _, err := stack.Service.RequestExtension(ctx, testfixtures.Student, ongoing.ID, "again"); err != nil {
			t.Fatalf("RequestExtension returned error: %v", err)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		t.Parallel()

		stack := newStack(t, application.Policy{})
		_, err := stack.Service.HandleExtension(context.Background(), testfixtures.FloorStaff, "any", "maybe")
		expectValidation(t, err, "action")
	})
}

func ptr[T any](v T) *T {
	return &v
}
