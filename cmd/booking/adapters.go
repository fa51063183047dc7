package main

import (
	"context"
	"time"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/persistence"
)

type reservationRepositoryAdapter struct {
	repo persistence.ReservationRepository
}

func newReservationRepositoryAdapter(repo persistence.ReservationRepository) *reservationRepositoryAdapter {
	return &reservationRepositoryAdapter{repo: repo}
}

func (a *reservationRepositoryAdapter) CreateReservation(ctx context.Context, reservation application.Reservation) (application.Reservation, error) {
	if err := a.repo.CreateReservation(ctx, toPersistenceReservation(reservation)); err != nil {
		return application.Reservation{}, err
	}
	return a.GetReservation(ctx, reservation.ID)
}

func (a *reservationRepositoryAdapter) GetReservation(ctx context.Context, id string) (application.Reservation, error) {
	stored, err := a.repo.GetReservation(ctx, id)
	if err != nil {
		return application.Reservation{}, err
	}
	return toApplicationReservation(stored), nil
}

func (a *reservationRepositoryAdapter) UpdateReservation(ctx context.Context, reservation application.Reservation, expectedVersion int64) (application.Reservation, error) {
	if err := a.repo.UpdateReservation(ctx, toPersistenceReservation(reservation), expectedVersion); err != nil {
		return application.Reservation{}, err
	}
	return a.GetReservation(ctx, reservation.ID)
}

func (a *reservationRepositoryAdapter) DeleteReservation(ctx context.Context, id string) error {
	return a.repo.DeleteReservation(ctx, id)
}

func (a *reservationRepositoryAdapter) ListReservations(ctx context.Context, filter application.ReservationFilter) ([]application.Reservation, error) {
	persistedFilter := persistence.ReservationFilter{
		OwnerID:        filter.OwnerID,
		Floor:          filter.Floor,
		Room:           filter.Room,
		StartsBefore:   cloneTime(filter.StartsBefore),
		EffectiveEndBy: cloneTime(filter.EffectiveEndBy),
	}
	for _, status := range filter.Statuses {
		persistedFilter.Statuses = append(persistedFilter.Statuses, string(status))
	}
	if filter.Overlapping != nil {
		start, end := filter.Overlapping.Start, filter.Overlapping.End
		persistedFilter.OverlapStart = &start
		persistedFilter.OverlapEnd = &end
	}

	models, err := a.repo.ListReservations(ctx, persistedFilter)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	reservations := make([]application.Reservation, 0, len(models))
	for _, model := range models {
		reservations = append(reservations, toApplicationReservation(model))
	}
	return reservations, nil
}

type notificationRepositoryAdapter struct {
	repo persistence.NotificationRepository
}

func newNotificationRepositoryAdapter(repo persistence.NotificationRepository) *notificationRepositoryAdapter {
	return &notificationRepositoryAdapter{repo: repo}
}

func (a *notificationRepositoryAdapter) CreateNotifications(ctx context.Context, notifications []application.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	models := make([]persistence.Notification, 0, len(notifications))
	for _, n := range notifications {
		models = append(models, toPersistenceNotification(n))
	}
	return a.repo.CreateNotifications(ctx, models)
}

func (a *notificationRepositoryAdapter) GetNotification(ctx context.Context, id string) (application.Notification, error) {
	stored, err := a.repo.GetNotification(ctx, id)
	if err != nil {
		return application.Notification{}, err
	}
	return toApplicationNotification(stored), nil
}

func (a *notificationRepositoryAdapter) ListNotifications(ctx context.Context, filter application.NotificationFilter) ([]application.Notification, error) {
	models, err := a.repo.ListNotifications(ctx, persistence.NotificationFilter{
		RecipientID: filter.RecipientID,
		UnreadOnly:  filter.UnreadOnly,
		Limit:       filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	notifications := make([]application.Notification, 0, len(models))
	for _, model := range models {
		notifications = append(notifications, toApplicationNotification(model))
	}
	return notifications, nil
}

func (a *notificationRepositoryAdapter) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return a.repo.CountUnread(ctx, recipientID)
}

func (a *notificationRepositoryAdapter) MarkRead(ctx context.Context, id string, at time.Time) (application.Notification, error) {
	if err := a.repo.MarkRead(ctx, id, at); err != nil {
		return application.Notification{}, err
	}
	return a.GetNotification(ctx, id)
}

func (a *notificationRepositoryAdapter) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	return a.repo.MarkAllRead(ctx, recipientID, at)
}

type staffRepositoryAdapter struct {
	repo persistence.StaffRepository
}

func newStaffRepositoryAdapter(repo persistence.StaffRepository) *staffRepositoryAdapter {
	return &staffRepositoryAdapter{repo: repo}
}

func (a *staffRepositoryAdapter) UpsertStaff(ctx context.Context, member application.StaffMember) (application.StaffMember, error) {
	if err := a.repo.UpsertStaff(ctx, toPersistenceStaff(member)); err != nil {
		return application.StaffMember{}, err
	}
	stored, err := a.repo.GetStaff(ctx, member.ID)
	if err != nil {
		return application.StaffMember{}, err
	}
	return toApplicationStaff(stored), nil
}

func (a *staffRepositoryAdapter) ListStaff(ctx context.Context, floor string) ([]application.StaffMember, error) {
	models, err := a.repo.ListStaff(ctx, floor)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	members := make([]application.StaffMember, 0, len(models))
	for _, model := range models {
		members = append(members, toApplicationStaff(model))
	}
	return members, nil
}

// staffDirectoryAdapter answers routing lookups. Floor keys are already canonical.
type staffDirectoryAdapter struct {
	repo persistence.StaffRepository
}

func newStaffDirectoryAdapter(repo persistence.StaffRepository) *staffDirectoryAdapter {
	return &staffDirectoryAdapter{repo: repo}
}

func (a *staffDirectoryAdapter) StaffOnFloor(ctx context.Context, floor string) ([]application.StaffMember, error) {
	if floor == "" {
		return nil, nil
	}
	return newStaffRepositoryAdapter(a.repo).ListStaff(ctx, floor)
}

func toApplicationReservation(model persistence.Reservation) application.Reservation {
	var participants []application.Participant
	if len(model.Participants) > 0 {
		participants = make([]application.Participant, 0, len(model.Participants))
		for _, p := range model.Participants {
			participants = append(participants, application.Participant(p))
		}
	}
	return application.Reservation{
		ID:                 model.ID,
		OwnerID:            model.OwnerID,
		Participants:       participants,
		Floor:              model.Floor,
		Room:               model.Room,
		Start:              model.Start,
		End:                model.End,
		Status:             application.Status(model.Status),
		ExtensionRequested: model.ExtensionRequested,
		ExtensionStatus:    application.ExtensionStatus(model.ExtensionStatus),
		ExtendedEnd:        cloneTime(model.ExtendedEnd),
		ExtensionReason:    model.ExtensionReason,
		ExtensionCap:       cloneTime(model.ExtensionCap),
		StartedAt:          cloneTime(model.StartedAt),
		EndedAt:            cloneTime(model.EndedAt),
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
		Version:            model.Version,
	}
}

func toPersistenceReservation(reservation application.Reservation) persistence.Reservation {
	var participants []persistence.Participant
	if len(reservation.Participants) > 0 {
		participants = make([]persistence.Participant, 0, len(reservation.Participants))
		for _, p := range reservation.Participants {
			participants = append(participants, persistence.Participant(p))
		}
	}
	return persistence.Reservation{
		ID:                 reservation.ID,
		OwnerID:            reservation.OwnerID,
		Floor:              reservation.Floor,
		Room:               reservation.Room,
		Participants:       participants,
		Start:              reservation.Start,
		End:                reservation.End,
		Status:             string(reservation.Status),
		ExtensionRequested: reservation.ExtensionRequested,
		ExtensionStatus:    string(reservation.ExtensionStatus),
		ExtendedEnd:        cloneTime(reservation.ExtendedEnd),
		ExtensionReason:    reservation.ExtensionReason,
		ExtensionCap:       cloneTime(reservation.ExtensionCap),
		StartedAt:          cloneTime(reservation.StartedAt),
		EndedAt:            cloneTime(reservation.EndedAt),
		CreatedAt:          reservation.CreatedAt,
		UpdatedAt:          reservation.UpdatedAt,
		Version:            reservation.Version,
	}
}

func toApplicationNotification(model persistence.Notification) application.Notification {
	return application.Notification{
		ID:            model.ID,
		RecipientID:   model.RecipientID,
		Kind:          application.EventKind(model.Kind),
		ReservationID: cloneString(model.ReservationID),
		ReportID:      cloneString(model.ReportID),
		Floor:         model.Floor,
		Message:       model.Message,
		IsRead:        model.IsRead,
		ReadAt:        cloneTime(model.ReadAt),
		CreatedAt:     model.CreatedAt,
	}
}

func toPersistenceNotification(n application.Notification) persistence.Notification {
	return persistence.Notification{
		ID:            n.ID,
		RecipientID:   n.RecipientID,
		Kind:          string(n.Kind),
		ReservationID: cloneString(n.ReservationID),
		ReportID:      cloneString(n.ReportID),
		Floor:         n.Floor,
		Message:       n.Message,
		IsRead:        n.IsRead,
		ReadAt:        cloneTime(n.ReadAt),
		CreatedAt:     n.CreatedAt,
	}
}

func toApplicationStaff(model persistence.StaffMember) application.StaffMember {
	return application.StaffMember{
		ID:          model.ID,
		DisplayName: model.DisplayName,
		Role:        application.Role(model.Role),
		Floor:       model.Floor,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceStaff(member application.StaffMember) persistence.StaffMember {
	return persistence.StaffMember{
		ID:          member.ID,
		DisplayName: member.DisplayName,
		Role:        string(member.Role),
		Floor:       member.Floor,
		UpdatedAt:   member.UpdatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
