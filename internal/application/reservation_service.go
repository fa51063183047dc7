package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/facility-booking/internal/floor"
	"github.com/example/facility-booking/internal/persistence"
	"github.com/example/facility-booking/internal/scheduler"
)

// ReservationRepository captures the persistence operations needed by the service.
type ReservationRepository interface {
	// CreateReservation inserts the reservation unless an active reservation of the same room
	// overlaps it, in which case persistence.ErrOverlap is returned.
	CreateReservation(ctx context.Context, reservation Reservation) (Reservation, error)
	GetReservation(ctx context.Context, id string) (Reservation, error)
	// UpdateReservation stores the reservation only if its stored version still equals
	// expectedVersion; otherwise persistence.ErrVersionConflict is returned.
	UpdateReservation(ctx context.Context, reservation Reservation, expectedVersion int64) (Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
}

// ReservationFilter narrows queries issued to the reservation repository.
type ReservationFilter struct {
	OwnerID  string
	Floor    string
	Room     string
	Statuses []Status
	// Overlapping keeps reservations whose effective window intersects it.
	Overlapping *scheduler.Window
	// StartsBefore keeps reservations with Start strictly before it.
	StartsBefore *time.Time
	// EffectiveEndBy keeps reservations whose effective end is at or before it.
	EffectiveEndBy *time.Time
}

// EventDispatcher receives the lifecycle events produced by transitions.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event LifecycleEvent) error
}

// ReservationService owns the reservation state machine.
type ReservationService struct {
	reservations ReservationRepository
	events       EventDispatcher
	locker       Locker
	policy       Policy
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
	cache        *occupancyCache
}

// NewReservationService wires dependencies for reservation operations.
func NewReservationService(reservations ReservationRepository, events EventDispatcher, locker Locker, policy Policy, idGenerator func() string, now func() time.Time) *ReservationService {
	return NewReservationServiceWithLogger(reservations, events, locker, policy, idGenerator, now, nil)
}

// NewReservationServiceWithLogger constructs a reservation service with a specified logger.
func NewReservationServiceWithLogger(reservations ReservationRepository, events EventDispatcher, locker Locker, policy Policy, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ReservationService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if locker == nil {
		locker = NewKeyedMutex()
	}
	policy = policy.withDefaults()
	return &ReservationService{
		reservations: reservations,
		events:       events,
		locker:       locker,
		policy:       policy,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
		cache:        newOccupancyCache(policy.OccupancyCacheTTL, 0, now),
	}
}

// Policy returns the effective rules of the service.
func (s *ReservationService) Policy() Policy {
	return s.policy
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReservationService", operation, attrs...)
}

// CreateReservation validates the request, checks the room for overlaps and stores a pending reservation.
func (s *ReservationService) CreateReservation(ctx context.Context, params CreateReservationParams) (reservation Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateReservation",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("reservation_id", reservation.ID).InfoContext(ctx, "reservation created")
	}()

	principal := params.Principal
	input := params.Input
	if input.OwnerID == "" {
		input.OwnerID = principal.UserID
	}
	if principal.UserID == "" || (input.OwnerID != principal.UserID && !principal.IsStaff()) {
		err = ErrForbidden
		return
	}

	input.Floor = floor.Normalize(input.Floor)
	input.Room = floor.NormalizeRoom(input.Room)
	input.Participants = trimParticipants(input.Participants)

	now := s.now()
	if vErr := s.validateInput(input, now); vErr.HasErrors() {
		err = vErr
		return
	}

	candidate := Reservation{
		ID:           s.idGenerator(),
		OwnerID:      input.OwnerID,
		Participants: input.Participants,
		Floor:        input.Floor,
		Room:         input.Room,
		Start:        input.Start,
		End:          input.End,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}

	if s.reservations == nil {
		reservation = candidate
		return
	}

	reservation, err = s.insert(ctx, candidate)
	if err != nil {
		return
	}

	s.publish(ctx, logger, newLifecycleEvent(EventReservationCreated, principal, reservation))
	return
}

func (s *ReservationService) insert(ctx context.Context, candidate Reservation) (Reservation, error) {
	unlock, err := s.locker.Lock(ctx, RoomLockKey(candidate.Floor, candidate.Room))
	if err != nil {
		return Reservation{}, err
	}
	defer unlock()

	window := candidate.Window()
	existing, err := s.reservations.ListReservations(ctx, ReservationFilter{
		Floor:       candidate.Floor,
		Room:        candidate.Room,
		Statuses:    ActiveStatuses(),
		Overlapping: &window,
	})
	if err != nil {
		return Reservation{}, mapReservationRepoError(err)
	}
	if conflicts := scheduler.DetectConflicts(toBookings(existing, ""), toBooking(candidate)); len(conflicts) > 0 {
		return Reservation{}, ErrConflict
	}

	persisted, err := s.reservations.CreateReservation(ctx, candidate)
	if err != nil {
		return Reservation{}, mapReservationRepoError(err)
	}
	s.cache.Invalidate()
	return persisted, nil
}

// GetReservation returns a reservation visible to the principal.
func (s *ReservationService) GetReservation(ctx context.Context, principal Principal, id string) (Reservation, error) {
	if s == nil {
		return Reservation{}, fmt.Errorf("ReservationService is nil")
	}
	reservation, err := s.load(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if !isOwnerOrStaff(principal, reservation) {
		return Reservation{}, ErrForbidden
	}
	return reservation, nil
}

// DeleteReservation removes the reservation permanently. Unlike Cancel it leaves nothing behind.
func (s *ReservationService) DeleteReservation(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("ReservationService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteReservation",
		"principal_id", principal.UserID,
		"reservation_id", id,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reservation deleted")
	}()

	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !isOwnerOrStaff(principal, current) {
		return ErrForbidden
	}

	unlock, err := s.locker.Lock(ctx, RoomLockKey(current.Floor, current.Room))
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.reservations.DeleteReservation(ctx, id); err != nil {
		return mapReservationRepoError(err)
	}
	s.cache.Invalidate()
	return nil
}

// ListReservations returns reservations for an owner or a floor, hiding terminal reservations
// older than the visibility window.
func (s *ReservationService) ListReservations(ctx context.Context, params ListReservationsParams) (reservations []Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListReservations",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list reservations", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(reservations)).InfoContext(ctx, "reservations listed")
	}()

	filter, err := s.buildListFilter(params)
	if err != nil {
		return
	}

	if s.reservations == nil {
		return
	}

	listed, err := s.reservations.ListReservations(ctx, filter)
	if err != nil {
		err = mapReservationRepoError(err)
		return
	}

	now := s.now()
	reservations = make([]Reservation, 0, len(listed))
	for _, reservation := range listed {
		if s.policy.visible(reservation, now) {
			reservations = append(reservations, reservation)
		}
	}
	sort.SliceStable(reservations, func(i, j int) bool {
		if reservations[i].Start.Equal(reservations[j].Start) {
			return reservations[i].ID < reservations[j].ID
		}
		return reservations[i].Start.Before(reservations[j].Start)
	})
	return
}

func (s *ReservationService) buildListFilter(params ListReservationsParams) (ReservationFilter, error) {
	principal := params.Principal
	if principal.UserID == "" {
		return ReservationFilter{}, ErrForbidden
	}

	vErr := &ValidationError{}
	for _, status := range params.Statuses {
		if !status.Valid() {
			vErr.add("status", fmt.Sprintf("unknown status %q", status))
		}
	}
	if vErr.HasErrors() {
		return ReservationFilter{}, vErr
	}

	filter := ReservationFilter{
		OwnerID:  strings.TrimSpace(params.OwnerID),
		Floor:    floor.Normalize(params.Floor),
		Room:     floor.NormalizeRoom(params.Room),
		Statuses: params.Statuses,
	}

	switch {
	case !principal.IsStaff():
		if filter.OwnerID != "" && filter.OwnerID != principal.UserID {
			return ReservationFilter{}, ErrForbidden
		}
		filter.OwnerID = principal.UserID
	case filter.OwnerID == "" && filter.Floor == "" && principal.Role == RoleStaff:
		filter.Floor = floor.Normalize(principal.Floor)
	}

	if params.Date != nil && !params.Date.IsZero() {
		day := s.policy.Civil.DayBounds(*params.Date)
		filter.Overlapping = &day
	}
	return filter, nil
}

// GetOccupancy returns the busy windows of every room on the floor (all floors when empty) for
// the civil date containing params.Date.
func (s *ReservationService) GetOccupancy(ctx context.Context, params OccupancyParams) ([]OccupancyWindow, error) {
	if s == nil {
		return nil, fmt.Errorf("ReservationService is nil")
	}
	if params.Date.IsZero() {
		return nil, newValidationError("date", "date is required")
	}

	floorKey := floor.Normalize(params.Floor)
	cacheKey := occupancyCacheKey(floorKey, s.policy.Civil.DayStart(params.Date))
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached, nil
	}
	generation := s.cache.Generation()

	windows, err := s.occupancy(ctx, floorKey, "", params.Date)
	if err != nil {
		return nil, err
	}

	out := make([]OccupancyWindow, 0, len(windows))
	for _, window := range windows {
		out = append(out, OccupancyWindow{
			Floor:          window.Floor,
			Room:           window.Room,
			Start:          window.Start,
			End:            window.End,
			ReservationIDs: window.BookingIDs,
		})
	}
	s.cache.Store(cacheKey, generation, out)
	return out, nil
}

// occupancy is the single source of busy windows, used by GetOccupancy and by the extension cap.
func (s *ReservationService) occupancy(ctx context.Context, floorKey, room string, date time.Time, skipIDs ...string) ([]scheduler.OccupancyWindow, error) {
	day := s.policy.Civil.DayBounds(date)
	if s.reservations == nil {
		return nil, nil
	}
	active, err := s.reservations.ListReservations(ctx, ReservationFilter{
		Floor:       floorKey,
		Room:        room,
		Statuses:    ActiveStatuses(),
		Overlapping: &day,
	})
	if err != nil {
		return nil, mapReservationRepoError(err)
	}

	skip := ""
	if len(skipIDs) > 0 {
		skip = skipIDs[0]
	}
	windows := scheduler.BuildOccupancy(toBookings(active, skip), day)
	return scheduler.FilterFloor(windows, floorKey), nil
}

// Approve moves a pending reservation to approved.
func (s *ReservationService) Approve(ctx context.Context, principal Principal, id string) (Reservation, error) {
	return s.transition(ctx, principal, id, "Approve", EventReservationApproved, func(now time.Time, r *Reservation) error {
		if !canApprove(principal, *r) {
			return ErrForbidden
		}
		if err := requireStatus(*r, StatusPending); err != nil {
			return err
		}
		r.Status = StatusApproved
		return nil
	})
}

// Reject moves a pending reservation to rejected.
func (s *ReservationService) Reject(ctx context.Context, principal Principal, id string) (Reservation, error) {
	return s.transition(ctx, principal, id, "Reject", EventReservationRejected, func(now time.Time, r *Reservation) error {
		if !principal.IsStaff() {
			return ErrForbidden
		}
		if err := requireStatus(*r, StatusPending); err != nil {
			return err
		}
		r.Status = StatusRejected
		return nil
	})
}

// Cancel moves a pending or approved reservation to cancelled. The row is kept.
func (s *ReservationService) Cancel(ctx context.Context, principal Principal, id string) (Reservation, error) {
	return s.transition(ctx, principal, id, "Cancel", EventReservationCancelled, func(now time.Time, r *Reservation) error {
		if !isOwnerOrStaff(principal, *r) {
			return ErrForbidden
		}
		if err := requireStatus(*r, StatusPending, StatusApproved); err != nil {
			return err
		}
		r.Status = StatusCancelled
		return nil
	})
}

// Start moves an approved reservation to ongoing once the early-start window has opened.
func (s *ReservationService) Start(ctx context.Context, principal Principal, id string) (Reservation, error) {
	return s.transition(ctx, principal, id, "Start", EventReservationStarted, func(now time.Time, r *Reservation) error {
		if !isOwnerOrStaff(principal, *r) {
			return ErrForbidden
		}
		if err := requireStatus(*r, StatusApproved); err != nil {
			return err
		}
		if now.Before(r.Start.Add(-s.policy.EarlyStart)) {
			return ErrTooEarly
		}
		if !now.Before(r.EffectiveEnd()) {
			return ErrInvalidTransition
		}
		r.Status = StatusOngoing
		startedAt := now
		r.StartedAt = &startedAt
		return nil
	})
}

// EndEarly completes an ongoing reservation before its effective end.
func (s *ReservationService) EndEarly(ctx context.Context, principal Principal, id string) (Reservation, error) {
	return s.transition(ctx, principal, id, "EndEarly", EventReservationEnded, func(now time.Time, r *Reservation) error {
		if !isOwnerOrStaff(principal, *r) {
			return ErrForbidden
		}
		if err := requireStatus(*r, StatusOngoing); err != nil {
			return err
		}
		r.Status = StatusCompleted
		endedAt := now
		r.EndedAt = &endedAt
		return nil
	})
}

type mutation func(now time.Time, reservation *Reservation) error

// transition runs mutate on a fresh copy of the reservation under its room lock and stores the
// result with a version check. A failed mutation leaves the stored reservation untouched.
func (s *ReservationService) transition(ctx context.Context, principal Principal, id, operation string, kind EventKind, mutate mutation) (updated Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, operation,
		"principal_id", principal.UserID,
		"reservation_id", id,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "reservation transition failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", updated.Status, "extension_status", updated.ExtensionStatus).InfoContext(ctx, "reservation transitioned")
	}()

	updated, err = s.applyLocked(ctx, id, mutate)
	if err != nil {
		return
	}

	if kind != "" {
		s.publish(ctx, logger, newLifecycleEvent(kind, principal, updated))
	}
	return
}

func (s *ReservationService) applyLocked(ctx context.Context, id string, mutate mutation) (Reservation, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return Reservation{}, err
	}

	unlock, err := s.locker.Lock(ctx, RoomLockKey(current.Floor, current.Room))
	if err != nil {
		return Reservation{}, err
	}
	defer unlock()

	// Re-read under the lock; the first read only located the room.
	current, err = s.load(ctx, id)
	if err != nil {
		return Reservation{}, err
	}

	now := s.now()
	next := current
	if err := mutate(now, &next); err != nil {
		return Reservation{}, err
	}
	next.UpdatedAt = now

	stored, err := s.reservations.UpdateReservation(ctx, next, current.Version)
	if err != nil {
		return Reservation{}, mapReservationRepoError(err)
	}
	s.cache.Invalidate()
	return stored, nil
}

func (s *ReservationService) load(ctx context.Context, id string) (Reservation, error) {
	if strings.TrimSpace(id) == "" {
		return Reservation{}, ErrNotFound
	}
	if s.reservations == nil {
		return Reservation{}, ErrNotFound
	}
	reservation, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return Reservation{}, mapReservationRepoError(err)
	}
	return reservation, nil
}

// publish hands the event to the router. The transition is already committed, so a routing
// failure is logged rather than returned.
func (s *ReservationService) publish(ctx context.Context, logger *slog.Logger, event LifecycleEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Dispatch(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to dispatch lifecycle event",
			"event_kind", event.Kind,
			"error", err,
			"error_kind", ErrorKind(err),
		)
	}
}

func (s *ReservationService) validateInput(input ReservationInput, now time.Time) *ValidationError {
	vErr := &ValidationError{}

	if input.OwnerID == "" {
		vErr.add("owner_id", "owner is required")
	}
	if input.Floor == "" {
		vErr.add("floor", "floor is required")
	}
	if input.Room == "" {
		vErr.add("room", "room is required")
	}

	switch {
	case input.Start.IsZero():
		vErr.add("start", "start is required")
	case input.End.IsZero():
		vErr.add("end", "end is required")
	case !input.Start.Before(input.End):
		vErr.add("end", "end must be after start")
	default:
		hours := s.policy.Civil.OperatingHours(input.Start)
		if input.Start.Before(hours.Start) || input.End.After(hours.End) {
			vErr.add("start", fmt.Sprintf("reservation must fall within operating hours %s-%s",
				hours.Start.Format("15:04"), hours.End.Format("15:04")))
		} else if input.Start.Before(now) {
			vErr.add("start", "start must not be in the past")
		}
	}

	if len(input.Participants) > s.policy.MaxGroupSize {
		vErr.add("participants", fmt.Sprintf("group size must not exceed %d", s.policy.MaxGroupSize))
	}
	for i, participant := range input.Participants {
		if participant.Name == "" {
			vErr.add(fmt.Sprintf("participants[%d].name", i), "name is required")
		}
	}

	return vErr
}

func trimParticipants(participants []Participant) []Participant {
	if len(participants) == 0 {
		return nil
	}
	out := make([]Participant, 0, len(participants))
	for _, participant := range participants {
		out = append(out, Participant{
			Name:       strings.TrimSpace(participant.Name),
			ExternalID: strings.TrimSpace(participant.ExternalID),
			Course:     strings.TrimSpace(participant.Course),
			Year:       strings.TrimSpace(participant.Year),
			Department: strings.TrimSpace(participant.Department),
		})
	}
	return out
}

func mapReservationRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrOverlap):
		return ErrConflict
	case errors.Is(err, persistence.ErrVersionConflict):
		return ErrInvalidTransition
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError("end", "end must be after start")
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrConflict
	}
	return err
}
