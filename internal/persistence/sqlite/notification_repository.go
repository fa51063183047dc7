package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/facility-booking/internal/persistence"
)

// NotificationRepository implements persistence.NotificationRepository using SQLite.
type NotificationRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewNotificationRepository creates a new SQLite notification repository.
func NewNotificationRepository(pool *ConnectionPool) *NotificationRepository {
	return &NotificationRepository{pool: pool, mapper: NewErrorMapper()}
}

type notificationRow struct {
	ID            string         `db:"id"`
	RecipientID   string         `db:"recipient_id"`
	Kind          string         `db:"kind"`
	ReservationID sql.NullString `db:"reservation_id"`
	ReportID      sql.NullString `db:"report_id"`
	Floor         string         `db:"floor"`
	Message       string         `db:"message"`
	IsRead        bool           `db:"is_read"`
	ReadAt        sql.NullString `db:"read_at"`
	CreatedAt     string         `db:"created_at"`
}

const notificationColumns = `id, recipient_id, kind, reservation_id, report_id, floor, message, is_read, read_at, created_at`

func (row notificationRow) toPersistence() (persistence.Notification, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.Notification{}, err
	}
	readAt, err := parseNullableTime(row.ReadAt)
	if err != nil {
		return persistence.Notification{}, err
	}
	return persistence.Notification{
		ID:            row.ID,
		RecipientID:   row.RecipientID,
		Kind:          row.Kind,
		ReservationID: stringPointer(row.ReservationID),
		ReportID:      stringPointer(row.ReportID),
		Floor:         row.Floor,
		Message:       row.Message,
		IsRead:        row.IsRead,
		ReadAt:        readAt,
		CreatedAt:     createdAt,
	}, nil
}

// CreateNotifications inserts all rows in one transaction.
func (r *NotificationRepository) CreateNotifications(ctx context.Context, notifications []persistence.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for _, n := range notifications {
			row := notificationRow{
				ID:            n.ID,
				RecipientID:   n.RecipientID,
				Kind:          n.Kind,
				ReservationID: nullableString(n.ReservationID),
				ReportID:      nullableString(n.ReportID),
				Floor:         n.Floor,
				Message:       n.Message,
				IsRead:        n.IsRead,
				ReadAt:        formatNullableTime(n.ReadAt),
				CreatedAt:     formatTime(n.CreatedAt),
			}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO notifications (`+notificationColumns+`)
				VALUES (:id, :recipient_id, :kind, :reservation_id, :report_id, :floor, :message, :is_read, :read_at, :created_at)`, row); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// GetNotification loads a notification by ID.
func (r *NotificationRepository) GetNotification(ctx context.Context, id string) (persistence.Notification, error) {
	var row notificationRow
	if err := r.pool.DB().GetContext(ctx, &row, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id); err != nil {
		return persistence.Notification{}, r.mapper.MapError(err)
	}
	return row.toPersistence()
}

// ListNotifications returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, filter persistence.NotificationFilter) ([]persistence.Notification, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.RecipientID != "" {
		clauses = append(clauses, "recipient_id = ?")
		args = append(args, filter.RecipientID)
	}
	if filter.UnreadOnly {
		clauses = append(clauses, "is_read = 0")
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []notificationRow
	if err := r.pool.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, r.mapper.MapError(err)
	}
	out := make([]persistence.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := row.toPersistence()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// CountUnread counts unread notifications for a recipient.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	if err := r.pool.DB().GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// MarkRead flags one notification as read. Already-read rows keep their original read time.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?`,
		formatTime(at), id)
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
}

// MarkAllRead flags every unread notification of the recipient in a single statement.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ? WHERE recipient_id = ? AND is_read = 0`,
		formatTime(at), recipientID)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return result.RowsAffected()
}
