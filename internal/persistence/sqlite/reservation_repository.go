package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/example/facility-booking/internal/persistence"
)

// ReservationRepository implements persistence.ReservationRepository using SQLite.
type ReservationRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewReservationRepository creates a new SQLite reservation repository.
func NewReservationRepository(pool *ConnectionPool) *ReservationRepository {
	return &ReservationRepository{pool: pool, mapper: NewErrorMapper()}
}

type reservationRow struct {
	ID                 string         `db:"id"`
	OwnerID            string         `db:"owner_id"`
	Floor              string         `db:"floor"`
	Room               string         `db:"room"`
	StartAt            string         `db:"start_at"`
	EndAt              string         `db:"end_at"`
	EffectiveEndAt     string         `db:"effective_end_at"`
	Status             string         `db:"status"`
	ExtensionRequested bool           `db:"extension_requested"`
	ExtensionStatus    string         `db:"extension_status"`
	ExtendedEndAt      sql.NullString `db:"extended_end_at"`
	ExtensionReason    string         `db:"extension_reason"`
	ExtensionCapAt     sql.NullString `db:"extension_cap_at"`
	StartedAt          sql.NullString `db:"started_at"`
	EndedAt            sql.NullString `db:"ended_at"`
	CreatedAt          string         `db:"created_at"`
	UpdatedAt          string         `db:"updated_at"`
	Version            int64          `db:"version"`
}

type participantRow struct {
	ReservationID string `db:"reservation_id"`
	Position      int    `db:"position"`
	Name          string `db:"name"`
	ExternalID    string `db:"external_id"`
	Course        string `db:"course"`
	Year          string `db:"year"`
	Department    string `db:"department"`
}

const reservationColumns = `id, owner_id, floor, room, start_at, end_at, effective_end_at, status,
	extension_requested, extension_status, extended_end_at, extension_reason, extension_cap_at,
	started_at, ended_at, created_at, updated_at, version`

func toReservationRow(r persistence.Reservation) reservationRow {
	return reservationRow{
		ID:                 r.ID,
		OwnerID:            r.OwnerID,
		Floor:              r.Floor,
		Room:               r.Room,
		StartAt:            formatTime(r.Start),
		EndAt:              formatTime(r.End),
		EffectiveEndAt:     formatTime(r.EffectiveEnd()),
		Status:             r.Status,
		ExtensionRequested: r.ExtensionRequested,
		ExtensionStatus:    r.ExtensionStatus,
		ExtendedEndAt:      formatNullableTime(r.ExtendedEnd),
		ExtensionReason:    r.ExtensionReason,
		ExtensionCapAt:     formatNullableTime(r.ExtensionCap),
		StartedAt:          formatNullableTime(r.StartedAt),
		EndedAt:            formatNullableTime(r.EndedAt),
		CreatedAt:          formatTime(r.CreatedAt),
		UpdatedAt:          formatTime(r.UpdatedAt),
		Version:            r.Version,
	}
}

func (row reservationRow) toPersistence() (persistence.Reservation, error) {
	var (
		r   persistence.Reservation
		err error
	)
	r.ID = row.ID
	r.OwnerID = row.OwnerID
	r.Floor = row.Floor
	r.Room = row.Room
	r.Status = row.Status
	r.ExtensionRequested = row.ExtensionRequested
	r.ExtensionStatus = row.ExtensionStatus
	r.ExtensionReason = row.ExtensionReason
	r.Version = row.Version

	if r.Start, err = parseTime(row.StartAt); err != nil {
		return r, err
	}
	if r.End, err = parseTime(row.EndAt); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return r, err
	}
	if r.ExtendedEnd, err = parseNullableTime(row.ExtendedEndAt); err != nil {
		return r, err
	}
	if r.ExtensionCap, err = parseNullableTime(row.ExtensionCapAt); err != nil {
		return r, err
	}
	if r.StartedAt, err = parseNullableTime(row.StartedAt); err != nil {
		return r, err
	}
	if r.EndedAt, err = parseNullableTime(row.EndedAt); err != nil {
		return r, err
	}
	return r, nil
}

// CreateReservation inserts the reservation and its participants. The overlap check and the
// insert share one transaction.
func (r *ReservationRepository) CreateReservation(ctx context.Context, reservation persistence.Reservation) error {
	if reservation.ID == "" || !reservation.Start.Before(reservation.End) {
		return persistence.ErrConstraintViolation
	}
	if reservation.Version == 0 {
		reservation.Version = 1
	}
	row := toReservationRow(reservation)

	return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if isActive(reservation.Status) {
			if err := r.checkOverlap(ctx, tx, row); err != nil {
				return err
			}
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO reservations (`+reservationColumns+`)
			VALUES (:id, :owner_id, :floor, :room, :start_at, :end_at, :effective_end_at, :status,
				:extension_requested, :extension_status, :extended_end_at, :extension_reason, :extension_cap_at,
				:started_at, :ended_at, :created_at, :updated_at, :version)`, row); err != nil {
			return r.mapper.MapError(err)
		}

		return insertParticipants(ctx, tx, reservation.ID, reservation.Participants, r.mapper)
	})
}

// checkOverlap returns persistence.ErrOverlap when another active reservation of the same room
// intersects row's window.
func (r *ReservationRepository) checkOverlap(ctx context.Context, tx *sqlx.Tx, row reservationRow) error {
	var overlapping int
	err := tx.GetContext(ctx, &overlapping, `
		SELECT COUNT(*) FROM reservations
		WHERE floor = ? AND room = ? AND id <> ?
		  AND status IN ('pending', 'approved', 'ongoing')
		  AND start_at < ? AND effective_end_at > ?`,
		row.Floor, row.Room, row.ID, row.EffectiveEndAt, row.StartAt,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	if overlapping > 0 {
		return persistence.ErrOverlap
	}
	return nil
}

func insertParticipants(ctx context.Context, tx *sqlx.Tx, reservationID string, participants []persistence.Participant, mapper *ErrorMapper) error {
	for i, participant := range participants {
		row := participantRow{
			ReservationID: reservationID,
			Position:      i,
			Name:          participant.Name,
			ExternalID:    participant.ExternalID,
			Course:        participant.Course,
			Year:          participant.Year,
			Department:    participant.Department,
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO reservation_participants (reservation_id, position, name, external_id, course, year, department)
			VALUES (:reservation_id, :position, :name, :external_id, :course, :year, :department)`, row); err != nil {
			return mapper.MapError(err)
		}
	}
	return nil
}

// GetReservation loads a reservation with its participants.
func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	var row reservationRow
	if err := r.pool.DB().GetContext(ctx, &row, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id); err != nil {
		return persistence.Reservation{}, r.mapper.MapError(err)
	}
	reservation, err := row.toPersistence()
	if err != nil {
		return persistence.Reservation{}, err
	}

	participants, err := r.loadParticipants(ctx, []string{id})
	if err != nil {
		return persistence.Reservation{}, err
	}
	reservation.Participants = participants[id]
	return reservation, nil
}

// UpdateReservation writes every mutable column when the stored version matches.
func (r *ReservationRepository) UpdateReservation(ctx context.Context, reservation persistence.Reservation, expectedVersion int64) error {
	if reservation.ID == "" {
		return persistence.ErrConstraintViolation
	}
	row := toReservationRow(reservation)
	row.Version = expectedVersion + 1

	return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE reservations SET
				floor = ?, room = ?, start_at = ?, end_at = ?, effective_end_at = ?, status = ?,
				extension_requested = ?, extension_status = ?, extended_end_at = ?, extension_reason = ?,
				extension_cap_at = ?, started_at = ?, ended_at = ?, updated_at = ?, version = ?
			WHERE id = ? AND version = ?`,
			row.Floor, row.Room, row.StartAt, row.EndAt, row.EffectiveEndAt, row.Status,
			row.ExtensionRequested, row.ExtensionStatus, row.ExtendedEndAt, row.ExtensionReason,
			row.ExtensionCapAt, row.StartedAt, row.EndedAt, row.UpdatedAt, row.Version,
			row.ID, expectedVersion,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 1 {
			// A longer effective end must not run into another booking written by a
			// different process since this one read the row.
			if isActive(reservation.Status) {
				return r.checkOverlap(ctx, tx, row)
			}
			return nil
		}

		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM reservations WHERE id = ?`, row.ID); err != nil {
			return r.mapper.MapError(err)
		}
		if exists == 0 {
			return persistence.ErrNotFound
		}
		return persistence.ErrVersionConflict
	})
}

// DeleteReservation removes the reservation and, by cascade, its participants.
func (r *ReservationRepository) DeleteReservation(ctx context.Context, id string) error {
	return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reservation_participants WHERE reservation_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// ListReservations returns reservations matching the filter ordered by start time.
func (r *ReservationRepository) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.OwnerID != "" {
		clauses = append(clauses, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Floor != "" {
		clauses = append(clauses, "floor = ?")
		args = append(args, filter.Floor)
	}
	if filter.Room != "" {
		clauses = append(clauses, "room = ?")
		args = append(args, filter.Room)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN (?)")
		args = append(args, filter.Statuses)
	}
	if filter.OverlapStart != nil && filter.OverlapEnd != nil {
		clauses = append(clauses, "start_at < ? AND effective_end_at > ?")
		args = append(args, formatTime(*filter.OverlapEnd), formatTime(*filter.OverlapStart))
	}
	if filter.StartsBefore != nil {
		clauses = append(clauses, "start_at < ?")
		args = append(args, formatTime(*filter.StartsBefore))
	}
	if filter.EffectiveEndBy != nil {
		clauses = append(clauses, "effective_end_at <= ?")
		args = append(args, formatTime(*filter.EffectiveEndBy))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_at, id"

	// sqlx.In expands the status slice; it is a no-op when no slice argument is present.
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: build reservation query: %w", err)
	}

	var rows []reservationRow
	if err := r.pool.DB().SelectContext(ctx, &rows, r.pool.DB().Rebind(query), args...); err != nil {
		return nil, r.mapper.MapError(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	reservations := make([]persistence.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := row.toPersistence()
		if err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
		reservations = append(reservations, reservation)
	}

	participants, err := r.loadParticipants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range reservations {
		reservations[i].Participants = participants[reservations[i].ID]
	}
	return reservations, nil
}

func (r *ReservationRepository) loadParticipants(ctx context.Context, ids []string) (map[string][]persistence.Participant, error) {
	out := make(map[string][]persistence.Participant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT reservation_id, position, name, external_id, course, year, department
		FROM reservation_participants
		WHERE reservation_id IN (?)
		ORDER BY reservation_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("sqlite: build participant query: %w", err)
	}

	var rows []participantRow
	if err := r.pool.DB().SelectContext(ctx, &rows, r.pool.DB().Rebind(query), args...); err != nil {
		return nil, r.mapper.MapError(err)
	}
	for _, row := range rows {
		out[row.ReservationID] = append(out[row.ReservationID], persistence.Participant{
			Name:       row.Name,
			ExternalID: row.ExternalID,
			Course:     row.Course,
			Year:       row.Year,
			Department: row.Department,
		})
	}
	return out, nil
}

func isActive(status string) bool {
	for _, active := range persistence.ActiveStatuses {
		if status == active {
			return true
		}
	}
	return false
}
