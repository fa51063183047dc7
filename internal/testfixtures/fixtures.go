package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/persistence"
)

var reservationCounter uint64

// Common principals.
var (
	Student      = application.Principal{UserID: "student-1", Role: application.RoleStudent}
	OtherStudent = application.Principal{UserID: "student-2", Role: application.RoleStudent}
	FloorStaff   = application.Principal{UserID: "staff-3", Role: application.RoleStaff, Floor: "3"}
	OtherStaff   = application.Principal{UserID: "staff-4", Role: application.RoleStaff, Floor: "4"}
	Admin        = application.Principal{UserID: "admin-1", Role: application.RoleAdmin}
)

// ReservationFixture is a deterministic reservation that can be materialised for application or
// persistence tests.
type ReservationFixture struct {
	ID              string
	OwnerID         string
	Floor           string
	Room            string
	Start           time.Time
	End             time.Time
	Status          string
	ExtensionStatus string
	ExtendedEnd     *time.Time
	StartedAt       *time.Time
	Participants    []application.Participant
	CreatedAt       time.Time
	Version         int64
}

// ReservationOption configures the generated reservation fixture.
type ReservationOption func(*ReservationFixture)

// NewReservationFixture returns a pending 13:00-14:00 reservation of room 301 on floor 3 owned
// by Student, with optional overrides.
func NewReservationFixture(opts ...ReservationOption) ReservationFixture {
	idx := atomic.AddUint64(&reservationCounter, 1)
	fixture := ReservationFixture{
		ID:        fmt.Sprintf("res-%03d", idx),
		OwnerID:   Student.UserID,
		Floor:     "3",
		Room:      "301",
		Start:     At(13, 0),
		End:       At(14, 0),
		Status:    string(application.StatusPending),
		CreatedAt: ReferenceTime(),
		Version:   1,
		Participants: []application.Participant{
			{Name: "Aiko Tanaka", ExternalID: "s1001", Course: "Informatics", Year: "2"},
		},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithReservationID overrides the generated ID.
func WithReservationID(id string) ReservationOption {
	return func(f *ReservationFixture) { f.ID = id }
}

// WithOwner sets the owner.
func WithOwner(ownerID string) ReservationOption {
	return func(f *ReservationFixture) { f.OwnerID = ownerID }
}

// WithRoom sets floor and room.
func WithRoom(floorLabel, room string) ReservationOption {
	return func(f *ReservationFixture) {
		f.Floor = floorLabel
		f.Room = room
	}
}

// WithWindow sets the booked window.
func WithWindow(start, end time.Time) ReservationOption {
	return func(f *ReservationFixture) {
		f.Start = start
		f.End = end
	}
}

// WithStatus sets the lifecycle status.
func WithStatus(status application.Status) ReservationOption {
	return func(f *ReservationFixture) {
		f.Status = string(status)
		if status == application.StatusOngoing && f.StartedAt == nil {
			started := f.Start
			f.StartedAt = &started
		}
	}
}

// WithExtendedEnd marks an approved extension ending at end.
func WithExtendedEnd(end time.Time) ReservationOption {
	return func(f *ReservationFixture) {
		f.ExtendedEnd = &end
		f.ExtensionStatus = string(application.ExtensionApproved)
	}
}

// WithCreatedAt sets the creation time.
func WithCreatedAt(t time.Time) ReservationOption {
	return func(f *ReservationFixture) { f.CreatedAt = t }
}

// WithParticipants replaces the participant list.
func WithParticipants(participants ...application.Participant) ReservationOption {
	return func(f *ReservationFixture) { f.Participants = participants }
}

// Application returns the fixture as an application.Reservation value.
func (f ReservationFixture) Application() application.Reservation {
	participants := append([]application.Participant(nil), f.Participants...)
	return application.Reservation{
		ID:                 f.ID,
		OwnerID:            f.OwnerID,
		Participants:       participants,
		Floor:              f.Floor,
		Room:               f.Room,
		Start:              f.Start,
		End:                f.End,
		Status:             application.Status(f.Status),
		ExtensionRequested: f.ExtensionStatus != "",
		ExtensionStatus:    application.ExtensionStatus(f.ExtensionStatus),
		ExtendedEnd:        copyTime(f.ExtendedEnd),
		StartedAt:          copyTime(f.StartedAt),
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.CreatedAt,
		Version:            f.Version,
	}
}

// Persistence returns the fixture as a persistence.Reservation value.
func (f ReservationFixture) Persistence() persistence.Reservation {
	participants := make([]persistence.Participant, 0, len(f.Participants))
	for _, p := range f.Participants {
		participants = append(participants, persistence.Participant(p))
	}
	return persistence.Reservation{
		ID:                 f.ID,
		OwnerID:            f.OwnerID,
		Floor:              f.Floor,
		Room:               f.Room,
		Participants:       participants,
		Start:              f.Start,
		End:                f.End,
		Status:             f.Status,
		ExtensionRequested: f.ExtensionStatus != "",
		ExtensionStatus:    f.ExtensionStatus,
		ExtendedEnd:        copyTime(f.ExtendedEnd),
		StartedAt:          copyTime(f.StartedAt),
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.CreatedAt,
		Version:            f.Version,
	}
}

// Input returns the fixture as creation input.
func (f ReservationFixture) Input() application.ReservationInput {
	return application.ReservationInput{
		OwnerID:      f.OwnerID,
		Floor:        f.Floor,
		Room:         f.Room,
		Start:        f.Start,
		End:          f.End,
		Participants: append([]application.Participant(nil), f.Participants...),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
