package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/testfixtures"
)

type transitionFunc func(ctx context.Context, stack *testfixtures.Stack, id string) (application.Reservation, error)

func approveAsStaff(ctx context.Context, stack *testfixtures.Stack, id string) (application.Reservation, error) {
	return stack.Service.Approve(ctx, testfixtures.FloorStaff, id)
}

func rejectAsStaff(ctx context.Context, stack *testfixtures.Stack, id string) (application.Reservation, error) {
	return stack.Service.Reject(ctx, testfixtures.FloorStaff, id)
}

func cancelAsOwner(ctx context.Context, stack *testfixtures.Stack, id string) (application.Reservation, error) {
	return stack.Service.Cancel(ctx, testfixtures.Student, id)
}

// race runs both transitions against the same reservation at once and returns their errors.
func race(stack *testfixtures.Stack, id string, a, b transitionFunc) (errA, errB error) {
	ctx := context.Background()
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, errA = a(ctx, stack, id)
	}()
	go func() {
		defer wg.Done()
		<-start
		_, errB = b(ctx, stack, id)
	}()
	close(start)
	wg.Wait()
	return errA, errB
}

func countKind(kinds []application.EventKind, kind application.EventKind) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func TestReservationServiceConcurrentTransitions(t *testing.T) {
	t.Parallel()

	const rounds = 20

	t.Run("exclusive transitions have a single winner", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			name  string
			a, b  transitionFunc
			kinds []application.EventKind
		}{
			{"cancel and cancel", cancelAsOwner, cancelAsOwner, []application.EventKind{application.EventReservationCancelled}},
			{"approve and reject", approveAsStaff, rejectAsStaff, []application.EventKind{application.EventReservationApproved, application.EventReservationRejected}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				for i := 0; i < rounds; i++ {
					stack := newStack(t, application.Policy{})
					created := createReservation(t, stack, testfixtures.Student, "301", testfixtures.At(13, 0), testfixtures.At(14, 0))

					errA, errB := race(stack, created.ID, tc.a, tc.b)
					if (errA == nil) == (errB == nil) {
						t.Fatalf("round %d: expected exactly one success, got %v and %v", i, errA, errB)
					}
					loser := errA
					if loser == nil {
						loser = errB
					}
					if !errors.Is(loser, application.ErrInvalidTransition) {
						t.Fatalf("round %d: expected ErrInvalidTransition for the loser, got %v", i, loser)
					}

					kinds := stack.Events.Kinds()
					total := 0
					for _, kind := range tc.kinds {
						total += countKind(kinds, kind)
					}
					if total != 1 {
						t.Fatalf("round %d: expected one lifecycle event, got %v", i, kinds)
					}
				}
			})
		}
	})

	t.Run("approve racing cancel always ends cancelled", func(t *testing.T) {
		t.Parallel()

		for i := 0; i < rounds; i++ {
			stack := newStack(t, application.Policy{})
			created := createReservation(t, stack, testfixtures.Student, "301", testfixtures.At(13, 0), testfixtures.At(14, 0))

			approveErr, cancelErr := race(stack, created.ID, approveAsStaff, cancelAsOwner)
			if cancelErr != nil {
				t.Fatalf("round %d: cancel is valid from pending and approved, got %v", i, cancelErr)
			}
			kinds := stack.Events.Kinds()
			approvals := countKind(kinds, application.EventReservationApproved)
			if approveErr != nil {
				if !errors.Is(approveErr, application.ErrInvalidTransition) {
					t.Fatalf("round %d: expected ErrInvalidTransition, got %v", i, approveErr)
				}
				if approvals != 0 {
					t.Fatalf("round %d: failed approval emitted an event: %v", i, kinds)
				}
			} else if approvals != 1 {
				t.Fatalf("round %d: expected one approval event, got %v", i, kinds)
			}
			if got := countKind(kinds, application.EventReservationCancelled); got != 1 {
				t.Fatalf("round %d: expected one cancellation event, got %v", i, kinds)
			}

			stored, err := stack.Reservations.GetReservation(context.Background(), created.ID)
			if err != nil {
				t.Fatalf("GetReservation returned error: %v", err)
			}
			if stored.Status != application.StatusCancelled {
				t.Fatalf("round %d: expected cancelled, got %s", i, stored.Status)
			}
		}
	})
}
