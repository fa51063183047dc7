package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/facility-booking/internal/floor"
)

// StaffRepository persists the local mirror of the staff directory.
type StaffRepository interface {
	UpsertStaff(ctx context.Context, member StaffMember) (StaffMember, error)
	ListStaff(ctx context.Context, floor string) ([]StaffMember, error)
}

// StaffService maintains floor assignments used for notification routing.
type StaffService struct {
	staff  StaffRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewStaffService constructs a staff service with the provided dependencies.
func NewStaffService(staff StaffRepository, now func() time.Time) *StaffService {
	return NewStaffServiceWithLogger(staff, now, nil)
}

// NewStaffServiceWithLogger constructs a staff service with a specified logger.
func NewStaffServiceWithLogger(staff StaffRepository, now func() time.Time, logger *slog.Logger) *StaffService {
	if now == nil {
		now = time.Now
	}
	return &StaffService{staff: staff, now: now, logger: defaultLogger(logger)}
}

// AssignStaff records or updates a staff member's floor assignment. Administrators only.
func (s *StaffService) AssignStaff(ctx context.Context, principal Principal, member StaffMember) (assigned StaffMember, err error) {
	if s == nil {
		err = fmt.Errorf("StaffService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "StaffService", "AssignStaff",
		"principal_id", principal.UserID,
		"staff_id", member.ID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to assign staff", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("floor", assigned.Floor).InfoContext(ctx, "staff assigned")
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}

	member.ID = strings.TrimSpace(member.ID)
	member.DisplayName = strings.TrimSpace(member.DisplayName)
	member.Floor = floor.Normalize(member.Floor)
	if member.Role == "" {
		member.Role = RoleStaff
	}

	vErr := &ValidationError{}
	if member.ID == "" {
		vErr.add("id", "id is required")
	}
	if member.Role != RoleStaff && member.Role != RoleAdmin {
		vErr.add("role", "role must be staff or admin")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	member.UpdatedAt = s.now()
	if s.staff == nil {
		assigned = member
		return
	}
	assigned, err = s.staff.UpsertStaff(ctx, member)
	return
}

// ListStaff returns the staff assigned to a floor, or everyone when floor is empty.
func (s *StaffService) ListStaff(ctx context.Context, principal Principal, floorLabel string) ([]StaffMember, error) {
	if s == nil {
		return nil, fmt.Errorf("StaffService is nil")
	}
	if !principal.IsStaff() {
		return nil, ErrForbidden
	}
	if s.staff == nil {
		return nil, nil
	}
	return s.staff.ListStaff(ctx, floor.Normalize(floorLabel))
}
