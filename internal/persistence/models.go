package persistence

import "time"

// Reservation is the stored form of a room reservation.
type Reservation struct {
	ID           string
	OwnerID      string
	Floor        string
	Room         string
	Participants []Participant
	Start        time.Time
	End          time.Time
	Status       string

	ExtensionRequested bool
	ExtensionStatus    string
	ExtendedEnd        *time.Time
	ExtensionReason    string
	ExtensionCap       *time.Time

	StartedAt *time.Time
	EndedAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// EffectiveEnd returns ExtendedEnd when set, otherwise End.
func (r Reservation) EffectiveEnd() time.Time {
	if r.ExtendedEnd != nil {
		return *r.ExtendedEnd
	}
	return r.End
}

// Participant is a group member row attached to a reservation.
type Participant struct {
	Name       string
	ExternalID string
	Course     string
	Year       string
	Department string
}

// Notification is a per-recipient notification row.
type Notification struct {
	ID            string
	RecipientID   string
	Kind          string
	ReservationID *string
	ReportID      *string
	Floor         string
	Message       string
	IsRead        bool
	ReadAt        *time.Time
	CreatedAt     time.Time
}

// StaffMember mirrors a staff directory entry and its floor assignment.
type StaffMember struct {
	ID          string
	DisplayName string
	Role        string
	Floor       string
	UpdatedAt   time.Time
}
