package sqlite

import (
	"context"

	"github.com/example/facility-booking/internal/persistence"
)

// StaffRepository implements persistence.StaffRepository using SQLite.
type StaffRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewStaffRepository creates a new SQLite staff repository.
func NewStaffRepository(pool *ConnectionPool) *StaffRepository {
	return &StaffRepository{pool: pool, mapper: NewErrorMapper()}
}

type staffRow struct {
	ID          string `db:"id"`
	DisplayName string `db:"display_name"`
	Role        string `db:"role"`
	Floor       string `db:"floor"`
	UpdatedAt   string `db:"updated_at"`
}

func (row staffRow) toPersistence() (persistence.StaffMember, error) {
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return persistence.StaffMember{}, err
	}
	return persistence.StaffMember{
		ID:          row.ID,
		DisplayName: row.DisplayName,
		Role:        row.Role,
		Floor:       row.Floor,
		UpdatedAt:   updatedAt,
	}, nil
}

// UpsertStaff inserts the member or replaces its role and floor assignment.
func (r *StaffRepository) UpsertStaff(ctx context.Context, member persistence.StaffMember) error {
	if member.ID == "" {
		return persistence.ErrConstraintViolation
	}
	row := staffRow{
		ID:          member.ID,
		DisplayName: member.DisplayName,
		Role:        member.Role,
		Floor:       member.Floor,
		UpdatedAt:   formatTime(member.UpdatedAt),
	}
	_, err := r.pool.DB().NamedExecContext(ctx, `
		INSERT INTO staff (id, display_name, role, floor, updated_at)
		VALUES (:id, :display_name, :role, :floor, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			role = excluded.role,
			floor = excluded.floor,
			updated_at = excluded.updated_at`, row)
	return r.mapper.MapError(err)
}

// GetStaff loads a staff member by ID.
func (r *StaffRepository) GetStaff(ctx context.Context, id string) (persistence.StaffMember, error) {
	var row staffRow
	if err := r.pool.DB().GetContext(ctx, &row,
		`SELECT id, display_name, role, floor, updated_at FROM staff WHERE id = ?`, id); err != nil {
		return persistence.StaffMember{}, r.mapper.MapError(err)
	}
	return row.toPersistence()
}

// ListStaff returns staff assigned to floor ordered by ID. An empty floor lists everyone.
func (r *StaffRepository) ListStaff(ctx context.Context, floor string) ([]persistence.StaffMember, error) {
	query := `SELECT id, display_name, role, floor, updated_at FROM staff`
	var args []any
	if floor != "" {
		query += ` WHERE floor = ?`
		args = append(args, floor)
	}
	query += ` ORDER BY id`

	var rows []staffRow
	if err := r.pool.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, r.mapper.MapError(err)
	}
	out := make([]persistence.StaffMember, 0, len(rows))
	for _, row := range rows {
		member, err := row.toPersistence()
		if err != nil {
			return nil, err
		}
		out = append(out, member)
	}
	return out, nil
}
