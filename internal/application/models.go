package application

import (
	"time"

	"github.com/example/facility-booking/internal/scheduler"
)

// Role is the portal role of a principal as reported by the user directory.
type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   Role
	// Floor is the staff member's floor assignment; empty for students and unassigned admins.
	Floor string
}

// IsAdmin reports whether the principal is an administrator.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsStaff reports whether the principal is staff or an administrator.
func (p Principal) IsStaff() bool {
	return p.Role == RoleStaff || p.Role == RoleAdmin
}

// Status is the lifecycle status of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// Active reports whether a reservation in s occupies its room.
func (s Status) Active() bool {
	return scheduler.BookingStatus(s).Occupies()
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusOngoing, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// ActiveStatuses lists the statuses that occupy a room.
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusApproved, StatusOngoing}
}

// ExtensionStatus tracks the extension sub-protocol of an ongoing reservation.
type ExtensionStatus string

const (
	ExtensionNone     ExtensionStatus = ""
	ExtensionPending  ExtensionStatus = "pending"
	ExtensionApproved ExtensionStatus = "approved"
	ExtensionRejected ExtensionStatus = "rejected"
)

// ExtensionAction is the staff decision on a pending extension.
type ExtensionAction string

const (
	ExtensionApprove ExtensionAction = "approve"
	ExtensionReject  ExtensionAction = "reject"
)

// Participant is a group member attached to a reservation.
type Participant struct {
	Name       string
	ExternalID string
	Course     string
	Year       string
	Department string
}

// Reservation is a room booking and its lifecycle state.
type Reservation struct {
	ID           string
	OwnerID      string
	Participants []Participant
	Floor        string
	Room         string
	Start        time.Time
	End          time.Time
	Status       Status

	ExtensionRequested bool
	ExtensionStatus    ExtensionStatus
	ExtendedEnd        *time.Time
	ExtensionReason    string
	// ExtensionCap is the latest end an approval would grant, computed when the request was made.
	ExtensionCap *time.Time

	StartedAt *time.Time
	EndedAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// EffectiveEnd returns the extended end granted by the last approved extension, otherwise End.
// ExtendedEnd is only ever written by an approval.
func (r Reservation) EffectiveEnd() time.Time {
	if r.ExtendedEnd != nil {
		return *r.ExtendedEnd
	}
	return r.End
}

// Window returns the effective [Start, EffectiveEnd) window.
func (r Reservation) Window() scheduler.Window {
	return scheduler.Window{Start: r.Start, End: r.EffectiveEnd()}
}

// ReservationInput captures caller provided reservation fields.
type ReservationInput struct {
	OwnerID      string
	Floor        string
	Room         string
	Start        time.Time
	End          time.Time
	Participants []Participant
}

// CreateReservationParams wraps the data required to create a reservation.
type CreateReservationParams struct {
	Principal Principal
	Input     ReservationInput
}

// ListReservationsParams narrows reservation list queries.
type ListReservationsParams struct {
	Principal Principal
	// OwnerID lists a single user's reservations. Students are always limited to their own.
	OwnerID string
	// Floor lists the reservations of a floor. Staff default to their assigned floor.
	Floor    string
	Room     string
	Statuses []Status
	// Date restricts results to reservations on the civil date containing it.
	Date *time.Time
}

// OccupancyParams selects the floor (empty for all floors) and civil date of an occupancy query.
type OccupancyParams struct {
	Floor string
	Date  time.Time
}

// OccupancyWindow is a busy interval of a room on a given date.
type OccupancyWindow struct {
	Floor          string
	Room           string
	Start          time.Time
	End            time.Time
	ReservationIDs []string
}

// SweepResult summarises one background expiry pass.
type SweepResult struct {
	Completed int
	Expired   int
	Failed    int
}

// EventKind identifies a lifecycle or report event routed to notifications.
type EventKind string

const (
	EventReservationCreated   EventKind = "reservation_created"
	EventReservationApproved  EventKind = "reservation_approved"
	EventReservationRejected  EventKind = "reservation_rejected"
	EventReservationCancelled EventKind = "reservation_cancelled"
	EventReservationStarted   EventKind = "reservation_started"
	EventReservationEnded     EventKind = "reservation_ended"
	EventReservationCompleted EventKind = "reservation_completed"
	EventReservationExpired   EventKind = "reservation_expired"
	EventExtensionRequested   EventKind = "extension_requested"
	EventExtensionApproved    EventKind = "extension_approved"
	EventExtensionRejected    EventKind = "extension_rejected"
	EventReportSubmitted      EventKind = "report_submitted"
	EventReportUpdated        EventKind = "report_updated"
)

// LifecycleEvent is produced by every reservation transition.
type LifecycleEvent struct {
	Kind          EventKind
	ReservationID string
	OwnerID       string
	ActorID       string
	Floor         string
	Room          string
	Start         time.Time
	End           time.Time
	OccurredAt    time.Time
}

// ReportEvent is produced by the report subsystem.
type ReportEvent struct {
	Kind       EventKind
	ReportID   string
	ReporterID string
	Floor      string
	Summary    string
	OccurredAt time.Time
}

// Notification is a per-recipient alert about one reservation or report event.
type Notification struct {
	ID            string
	RecipientID   string
	Kind          EventKind
	ReservationID *string
	ReportID      *string
	Floor         string
	Message       string
	IsRead        bool
	ReadAt        *time.Time
	CreatedAt     time.Time
}

// PayloadRef returns the opaque reference of the event the notification is about.
func (n Notification) PayloadRef() string {
	switch {
	case n.ReservationID != nil:
		return "reservation:" + *n.ReservationID
	case n.ReportID != nil:
		return "report:" + *n.ReportID
	}
	return ""
}

// ListNotificationsParams narrows notification list queries.
type ListNotificationsParams struct {
	Principal  Principal
	UnreadOnly bool
	Limit      int
}

// StaffMember is a staff directory entry with its floor assignment.
type StaffMember struct {
	ID          string
	DisplayName string
	Role        Role
	Floor       string
	UpdatedAt   time.Time
}
