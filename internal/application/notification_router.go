package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/facility-booking/internal/floor"
	"github.com/example/facility-booking/internal/persistence"
)

// NotificationRepository stores per-recipient notifications and their read state.
type NotificationRepository interface {
	CreateNotifications(ctx context.Context, notifications []Notification) error
	GetNotification(ctx context.Context, id string) (Notification, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	// MarkRead flags one notification as read and returns it.
	MarkRead(ctx context.Context, id string, at time.Time) (Notification, error)
	// MarkAllRead flags every unread notification of the recipient in one statement and
	// returns how many changed.
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
}

// NotificationFilter narrows queries issued to the notification repository.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
}

// StaffDirectory resolves the staff accounts assigned to a canonical floor.
type StaffDirectory interface {
	StaffOnFloor(ctx context.Context, floor string) ([]StaffMember, error)
}

// Notifier forwards a stored notification to an outbound channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Notifiers fans a notification out to several notifiers.
type Notifiers []Notifier

// Notify calls every notifier and joins their errors.
func (n Notifiers) Notify(ctx context.Context, notification Notification) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type audience int

const (
	audienceNone audience = iota
	audienceOwner
	audienceFloorStaff
	audienceFloorStaffAndOwner
)

var eventAudiences = map[EventKind]audience{
	EventReservationCreated:   audienceFloorStaff,
	EventReservationApproved:  audienceOwner,
	EventReservationRejected:  audienceOwner,
	EventReservationCancelled: audienceFloorStaff,
	EventReservationStarted:   audienceNone,
	EventReservationEnded:     audienceOwner,
	EventReservationCompleted: audienceNone,
	EventReservationExpired:   audienceOwner,
	EventExtensionRequested:   audienceFloorStaff,
	EventExtensionApproved:    audienceOwner,
	EventExtensionRejected:    audienceOwner,
	EventReportSubmitted:      audienceFloorStaff,
	EventReportUpdated:        audienceFloorStaffAndOwner,
}

var eventMessages = map[EventKind]string{
	EventReservationCreated:   "New reservation request for room %s on floor %s",
	EventReservationApproved:  "Your reservation for room %s on floor %s was approved",
	EventReservationRejected:  "Your reservation for room %s on floor %s was rejected",
	EventReservationCancelled: "Reservation for room %s on floor %s was cancelled",
	EventReservationEnded:     "Your reservation for room %s on floor %s has ended",
	EventReservationExpired:   "Your reservation for room %s on floor %s expired because it was not started",
	EventExtensionRequested:   "Extension requested for room %s on floor %s",
	EventExtensionApproved:    "Your extension for room %s on floor %s was approved",
	EventExtensionRejected:    "Your extension for room %s on floor %s was rejected",
}

// NotificationRouter turns lifecycle and report events into per-recipient notifications and
// tracks their read state.
type NotificationRouter struct {
	notifications NotificationRepository
	staff         StaffDirectory
	notifier      Notifier
	idGenerator   func() string
	now           func() time.Time
	logger        *slog.Logger
}

// NewNotificationRouter wires dependencies for notification routing.
func NewNotificationRouter(notifications NotificationRepository, staff StaffDirectory, notifier Notifier, idGenerator func() string, now func() time.Time) *NotificationRouter {
	return NewNotificationRouterWithLogger(notifications, staff, notifier, idGenerator, now, nil)
}

// NewNotificationRouterWithLogger constructs a notification router with a specified logger.
func NewNotificationRouterWithLogger(notifications NotificationRepository, staff StaffDirectory, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *NotificationRouter {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &NotificationRouter{
		notifications: notifications,
		staff:         staff,
		notifier:      notifier,
		idGenerator:   idGenerator,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

func (r *NotificationRouter) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, r.logger, "NotificationRouter", operation, attrs...)
}

// Dispatch stores one notification per recipient of the lifecycle event.
func (r *NotificationRouter) Dispatch(ctx context.Context, event LifecycleEvent) (err error) {
	if r == nil {
		return fmt.Errorf("NotificationRouter is nil")
	}

	logger := r.loggerWith(ctx, "Dispatch",
		"event_kind", event.Kind,
		"reservation_id", event.ReservationID,
	)

	floorKey := floor.Normalize(event.Floor)
	recipients, err := r.recipients(ctx, eventAudiences[event.Kind], floorKey, event.OwnerID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve recipients", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	reservationID := event.ReservationID
	message := fmt.Sprintf(eventMessages[event.Kind], event.Room, floorKey)
	return r.deliver(ctx, logger, recipients, func(recipient string) Notification {
		return Notification{
			RecipientID:   recipient,
			Kind:          event.Kind,
			ReservationID: &reservationID,
			Floor:         floorKey,
			Message:       message,
		}
	})
}

// NotifyReport routes a report subsystem event: new reports go to the floor's staff, updates
// also reach the reporter.
func (r *NotificationRouter) NotifyReport(ctx context.Context, event ReportEvent) error {
	if r == nil {
		return fmt.Errorf("NotificationRouter is nil")
	}

	logger := r.loggerWith(ctx, "NotifyReport",
		"event_kind", event.Kind,
		"report_id", event.ReportID,
	)

	vErr := &ValidationError{}
	if strings.TrimSpace(event.ReportID) == "" {
		vErr.add("report_id", "report id is required")
	}
	if event.Kind != EventReportSubmitted && event.Kind != EventReportUpdated {
		vErr.add("kind", "kind must be report_submitted or report_updated")
	}
	if floor.Normalize(event.Floor) == "" {
		vErr.add("floor", "floor is required")
	}
	if vErr.HasErrors() {
		return vErr
	}

	floorKey := floor.Normalize(event.Floor)
	recipients, err := r.recipients(ctx, eventAudiences[event.Kind], floorKey, event.ReporterID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve recipients", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	reportID := event.ReportID
	message := strings.TrimSpace(event.Summary)
	if message == "" {
		message = fmt.Sprintf("Report %s on floor %s", reportID, floorKey)
	}
	return r.deliver(ctx, logger, recipients, func(recipient string) Notification {
		return Notification{
			RecipientID: recipient,
			Kind:        event.Kind,
			ReportID:    &reportID,
			Floor:       floorKey,
			Message:     message,
		}
	})
}

func (r *NotificationRouter) recipients(ctx context.Context, target audience, floorKey, ownerID string) ([]string, error) {
	var recipients []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}

	if target == audienceFloorStaff || target == audienceFloorStaffAndOwner {
		if r.staff != nil && floorKey != "" {
			members, err := r.staff.StaffOnFloor(ctx, floorKey)
			if err != nil {
				return nil, err
			}
			for _, member := range members {
				if floor.Equal(member.Floor, floorKey) {
					add(member.ID)
				}
			}
		}
	}
	if target == audienceOwner || target == audienceFloorStaffAndOwner {
		add(ownerID)
	}
	return recipients, nil
}

// deliver stores the batch first and forwards afterwards; forwarding is best effort.
func (r *NotificationRouter) deliver(ctx context.Context, logger *slog.Logger, recipients []string, build func(recipient string) Notification) error {
	if len(recipients) == 0 {
		logger.DebugContext(ctx, "event has no recipients")
		return nil
	}

	createdAt := r.now()
	batch := make([]Notification, 0, len(recipients))
	for _, recipient := range recipients {
		notification := build(recipient)
		notification.ID = r.idGenerator()
		notification.CreatedAt = createdAt
		batch = append(batch, notification)
	}

	if r.notifications != nil {
		if err := r.notifications.CreateNotifications(ctx, batch); err != nil {
			err = mapNotificationRepoError(err)
			logger.ErrorContext(ctx, "failed to store notifications", "error", err, "error_kind", ErrorKind(err))
			return err
		}
	}

	if r.notifier != nil {
		for _, notification := range batch {
			if err := r.notifier.Notify(ctx, notification); err != nil {
				logger.WarnContext(ctx, "failed to forward notification",
					"notification_id", notification.ID,
					"recipient_id", notification.RecipientID,
					"error", err,
				)
			}
		}
	}

	logger.With("recipient_count", len(batch)).InfoContext(ctx, "notifications created")
	return nil
}

// ListNotifications returns the principal's notifications, newest first.
func (r *NotificationRouter) ListNotifications(ctx context.Context, params ListNotificationsParams) ([]Notification, error) {
	if r == nil {
		return nil, fmt.Errorf("NotificationRouter is nil")
	}
	if params.Principal.UserID == "" {
		return nil, ErrForbidden
	}
	if params.Limit < 0 {
		return nil, newValidationError("limit", "limit must not be negative")
	}
	if r.notifications == nil {
		return nil, nil
	}

	notifications, err := r.notifications.ListNotifications(ctx, NotificationFilter{
		RecipientID: params.Principal.UserID,
		UnreadOnly:  params.UnreadOnly,
		Limit:       params.Limit,
	})
	if err != nil {
		return nil, mapNotificationRepoError(err)
	}
	return notifications, nil
}

// UnreadCount returns the number of unread notifications of the principal.
func (r *NotificationRouter) UnreadCount(ctx context.Context, principal Principal) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("NotificationRouter is nil")
	}
	if principal.UserID == "" {
		return 0, ErrForbidden
	}
	if r.notifications == nil {
		return 0, nil
	}
	count, err := r.notifications.CountUnread(ctx, principal.UserID)
	if err != nil {
		return 0, mapNotificationRepoError(err)
	}
	return count, nil
}

// MarkRead marks one of the principal's notifications as read. Marking a read notification again
// is a no-op.
func (r *NotificationRouter) MarkRead(ctx context.Context, principal Principal, id string) (notification Notification, err error) {
	if r == nil {
		err = fmt.Errorf("NotificationRouter is nil")
		return
	}

	logger := r.loggerWith(ctx, "MarkRead",
		"principal_id", principal.UserID,
		"notification_id", id,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark notification read", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if r.notifications == nil || strings.TrimSpace(id) == "" {
		err = ErrNotFound
		return
	}

	current, err := r.notifications.GetNotification(ctx, id)
	if err != nil {
		err = mapNotificationRepoError(err)
		return
	}
	if current.RecipientID != principal.UserID {
		err = ErrForbidden
		return
	}
	if current.IsRead {
		notification = current
		return
	}

	notification, err = r.notifications.MarkRead(ctx, id, r.now())
	err = mapNotificationRepoError(err)
	return
}

// MarkAllRead marks every unread notification of the principal as read and returns how many
// changed. Notifications created after the update are left unread.
func (r *NotificationRouter) MarkAllRead(ctx context.Context, principal Principal) (updated int64, err error) {
	if r == nil {
		err = fmt.Errorf("NotificationRouter is nil")
		return
	}

	logger := r.loggerWith(ctx, "MarkAllRead",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark notifications read", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("updated", updated).InfoContext(ctx, "notifications marked read")
	}()

	if principal.UserID == "" {
		err = ErrForbidden
		return
	}
	if r.notifications == nil {
		return
	}

	updated, err = r.notifications.MarkAllRead(ctx, principal.UserID, r.now())
	err = mapNotificationRepoError(err)
	return
}

func mapNotificationRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
