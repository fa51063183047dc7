package testfixtures

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/floor"
	"github.com/example/facility-booking/internal/persistence"
)

// ReservationStore is an in-memory application.ReservationRepository with the same overlap and
// version semantics as the SQLite repository.
type ReservationStore struct {
	mu    sync.Mutex
	items map[string]application.Reservation
}

// NewReservationStore returns a store holding the given reservations.
func NewReservationStore(seed ...application.Reservation) *ReservationStore {
	store := &ReservationStore{items: make(map[string]application.Reservation)}
	for _, r := range seed {
		if r.Version == 0 {
			r.Version = 1
		}
		store.items[r.ID] = cloneReservation(r)
	}
	return store
}

// Put stores r as-is, bypassing every check.
func (s *ReservationStore) Put(r application.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[r.ID] = cloneReservation(r)
}

func (s *ReservationStore) CreateReservation(ctx context.Context, reservation application.Reservation) (application.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[reservation.ID]; exists {
		return application.Reservation{}, persistence.ErrDuplicate
	}
	if reservation.Status.Active() {
		for _, existing := range s.items {
			if existing.Status.Active() && existing.Floor == reservation.Floor && existing.Room == reservation.Room &&
				existing.Window().Overlaps(reservation.Window()) {
				return application.Reservation{}, persistence.ErrOverlap
			}
		}
	}
	if reservation.Version == 0 {
		reservation.Version = 1
	}
	s.items[reservation.ID] = cloneReservation(reservation)
	return cloneReservation(reservation), nil
}

func (s *ReservationStore) GetReservation(ctx context.Context, id string) (application.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return application.Reservation{}, persistence.ErrNotFound
	}
	return cloneReservation(r), nil
}

func (s *ReservationStore) UpdateReservation(ctx context.Context, reservation application.Reservation, expectedVersion int64) (application.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[reservation.ID]
	if !ok {
		return application.Reservation{}, persistence.ErrNotFound
	}
	if current.Version != expectedVersion {
		return application.Reservation{}, persistence.ErrVersionConflict
	}
	reservation.Version = expectedVersion + 1
	s.items[reservation.ID] = cloneReservation(reservation)
	return cloneReservation(reservation), nil
}

func (s *ReservationStore) DeleteReservation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *ReservationStore) ListReservations(ctx context.Context, filter application.ReservationFilter) ([]application.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []application.Reservation
	for _, r := range s.items {
		if filter.OwnerID != "" && r.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Floor != "" && r.Floor != filter.Floor {
			continue
		}
		if filter.Room != "" && r.Room != filter.Room {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, r.Status) {
			continue
		}
		if filter.Overlapping != nil && !r.Window().Overlaps(*filter.Overlapping) {
			continue
		}
		if filter.StartsBefore != nil && !r.Start.Before(*filter.StartsBefore) {
			continue
		}
		if filter.EffectiveEndBy != nil && r.EffectiveEnd().After(*filter.EffectiveEndBy) {
			continue
		}
		out = append(out, cloneReservation(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func cloneReservation(r application.Reservation) application.Reservation {
	r.Participants = append([]application.Participant(nil), r.Participants...)
	r.ExtendedEnd = copyTime(r.ExtendedEnd)
	r.ExtensionCap = copyTime(r.ExtensionCap)
	r.StartedAt = copyTime(r.StartedAt)
	r.EndedAt = copyTime(r.EndedAt)
	return r
}

// NotificationStore is an in-memory application.NotificationRepository.
type NotificationStore struct {
	mu    sync.Mutex
	items []application.Notification
}

// NewNotificationStore returns an empty store.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

// All returns every stored notification in insertion order.
func (s *NotificationStore) All() []application.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]application.Notification(nil), s.items...)
}

// For returns the stored notifications of one recipient in insertion order.
func (s *NotificationStore) For(recipientID string) []application.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []application.Notification
	for _, n := range s.items {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

func (s *NotificationStore) CreateNotifications(ctx context.Context, notifications []application.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range notifications {
		for _, existing := range s.items {
			if existing.ID == n.ID {
				return persistence.ErrDuplicate
			}
		}
	}
	s.items = append(s.items, notifications...)
	return nil
}

func (s *NotificationStore) GetNotification(ctx context.Context, id string) (application.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.items {
		if n.ID == id {
			return n, nil
		}
	}
	return application.Notification{}, persistence.ErrNotFound
}

func (s *NotificationStore) ListNotifications(ctx context.Context, filter application.NotificationFilter) ([]application.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []application.Notification
	for i := len(s.items) - 1; i >= 0; i-- {
		n := s.items[i]
		if filter.RecipientID != "" && n.RecipientID != filter.RecipientID {
			continue
		}
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.items {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, id string, at time.Time) (application.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if !s.items[i].IsRead {
			s.items[i].IsRead = true
			s.items[i].ReadAt = &at
		}
		return s.items[i], nil
	}
	return application.Notification{}, persistence.ErrNotFound
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for i := range s.items {
		if s.items[i].RecipientID == recipientID && !s.items[i].IsRead {
			s.items[i].IsRead = true
			s.items[i].ReadAt = &at
			updated++
		}
	}
	return updated, nil
}

// StaffStore is an in-memory staff mirror serving both application.StaffRepository and
// application.StaffDirectory.
type StaffStore struct {
	mu      sync.Mutex
	members map[string]application.StaffMember
}

// NewStaffStore returns a store holding the given members.
func NewStaffStore(members ...application.StaffMember) *StaffStore {
	store := &StaffStore{members: make(map[string]application.StaffMember)}
	for _, m := range members {
		if m.Role == "" {
			m.Role = application.RoleStaff
		}
		m.Floor = floor.Normalize(m.Floor)
		store.members[m.ID] = m
	}
	return store
}

func (s *StaffStore) UpsertStaff(ctx context.Context, member application.StaffMember) (application.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[member.ID] = member
	return member, nil
}

func (s *StaffStore) ListStaff(ctx context.Context, floorKey string) ([]application.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []application.StaffMember
	for _, m := range s.members {
		if floorKey == "" || m.Floor == floorKey {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *StaffStore) StaffOnFloor(ctx context.Context, floorKey string) ([]application.StaffMember, error) {
	return s.ListStaff(ctx, floorKey)
}

// RecordingNotifier captures forwarded notifications. When Err is set every call fails with it
// after recording.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []application.Notification
	Err  error
}

func (n *RecordingNotifier) Notify(ctx context.Context, notification application.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return n.Err
}

// Sent returns the forwarded notifications in order.
func (n *RecordingNotifier) Sent() []application.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]application.Notification(nil), n.sent...)
}

// EventRecorder is an application.EventDispatcher that keeps every event, optionally passing it
// on to Next.
type EventRecorder struct {
	mu     sync.Mutex
	events []application.LifecycleEvent
	Next   application.EventDispatcher
}

func (r *EventRecorder) Dispatch(ctx context.Context, event application.LifecycleEvent) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	if r.Next != nil {
		return r.Next.Dispatch(ctx, event)
	}
	return nil
}

// Kinds returns the recorded event kinds in order.
func (r *EventRecorder) Kinds() []application.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]application.EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// Events returns the recorded events in order.
func (r *EventRecorder) Events() []application.LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]application.LifecycleEvent(nil), r.events...)
}
