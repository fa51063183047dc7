package persistence

import (
	"context"
	"time"
)

// ActiveStatuses are the reservation statuses that occupy a room.
var ActiveStatuses = []string{"pending", "approved", "ongoing"}

// ReservationFilter narrows reservation queries. Zero fields do not filter.
type ReservationFilter struct {
	OwnerID  string
	Floor    string
	Room     string
	Statuses []string
	// OverlapStart and OverlapEnd keep reservations whose effective window intersects
	// [OverlapStart, OverlapEnd). Both must be set to apply.
	OverlapStart *time.Time
	OverlapEnd   *time.Time
	StartsBefore *time.Time
	// EffectiveEndBy keeps reservations whose effective end is at or before it.
	EffectiveEndBy *time.Time
}

// ReservationRepository stores reservations and their participants.
type ReservationRepository interface {
	// CreateReservation fails with ErrOverlap when an active reservation of the same room
	// overlaps the new one.
	CreateReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	// UpdateReservation writes the reservation with version expectedVersion+1, or fails with
	// ErrVersionConflict when the stored version differs.
	UpdateReservation(ctx context.Context, reservation Reservation, expectedVersion int64) error
	DeleteReservation(ctx context.Context, id string) error
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
}

// NotificationFilter narrows notification queries.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
}

// NotificationRepository stores notifications and read state.
type NotificationRepository interface {
	CreateNotifications(ctx context.Context, notifications []Notification) error
	GetNotification(ctx context.Context, id string) (Notification, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
}

// StaffRepository stores the staff directory mirror.
type StaffRepository interface {
	UpsertStaff(ctx context.Context, member StaffMember) error
	GetStaff(ctx context.Context, id string) (StaffMember, error)
	ListStaff(ctx context.Context, floor string) ([]StaffMember, error)
}
