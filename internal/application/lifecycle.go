package application

import (
	"slices"

	"github.com/example/facility-booking/internal/floor"
	"github.com/example/facility-booking/internal/scheduler"
)

// requireStatus fails with ErrAlreadyTerminal or ErrInvalidTransition unless the reservation
// is in one of the allowed statuses.
func requireStatus(reservation Reservation, allowed ...Status) error {
	if slices.Contains(allowed, reservation.Status) {
		return nil
	}
	if reservation.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	return ErrInvalidTransition
}

func isOwner(principal Principal, reservation Reservation) bool {
	return principal.UserID != "" && principal.UserID == reservation.OwnerID
}

func isOwnerOrStaff(principal Principal, reservation Reservation) bool {
	return isOwner(principal, reservation) || principal.IsStaff()
}

// canApprove allows administrators anywhere and staff on the reservation's own floor.
func canApprove(principal Principal, reservation Reservation) bool {
	if principal.IsAdmin() {
		return true
	}
	return principal.Role == RoleStaff && floor.Equal(principal.Floor, reservation.Floor)
}

func toBooking(reservation Reservation) scheduler.Booking {
	return scheduler.Booking{
		ID:     reservation.ID,
		Floor:  reservation.Floor,
		Room:   reservation.Room,
		Window: reservation.Window(),
		Status: scheduler.BookingStatus(reservation.Status),
	}
}

func toBookings(reservations []Reservation, skipID string) []scheduler.Booking {
	bookings := make([]scheduler.Booking, 0, len(reservations))
	for _, reservation := range reservations {
		if skipID != "" && reservation.ID == skipID {
			continue
		}
		bookings = append(bookings, toBooking(reservation))
	}
	return bookings
}

func newLifecycleEvent(kind EventKind, actor Principal, reservation Reservation) LifecycleEvent {
	return LifecycleEvent{
		Kind:          kind,
		ReservationID: reservation.ID,
		OwnerID:       reservation.OwnerID,
		ActorID:       actor.UserID,
		Floor:         reservation.Floor,
		Room:          reservation.Room,
		Start:         reservation.Start,
		End:           reservation.EffectiveEnd(),
		OccurredAt:    reservation.UpdatedAt,
	}
}
