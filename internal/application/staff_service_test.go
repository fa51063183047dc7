package application_test

import (
	"context"
	"testing"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/testfixtures"
)

func TestStaffService(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	factory := testfixtures.NewServiceFactory()
	store := testfixtures.NewStaffStore()
	svc := factory.NewStaffService(store)

	_, err := svc.AssignStaff(ctx, testfixtures.FloorStaff, application.StaffMember{ID: "staff-9", Floor: "2"})
	expectError(t, err, application.ErrForbidden)

	_, err = svc.AssignStaff(ctx, testfixtures.Admin, application.StaffMember{ID: "student-1", Role: application.RoleStudent})
	expectValidation(t, err, "role")

	assigned, err := svc.AssignStaff(ctx, testfixtures.Admin, application.StaffMember{ID: " staff-9 ", DisplayName: "Kato", Floor: "Second Floor"})
	if err != nil {
		t.Fatalf("AssignStaff returned error: %v", err)
	}
	if assigned.ID != "staff-9" || assigned.Floor != "2" || assigned.Role != application.RoleStaff {
		t.Fatalf("unexpected assignment %+v", assigned)
	}
	if !assigned.UpdatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected UpdatedAt from the clock, got %v", assigned.UpdatedAt)
	}

	onFloor, err := store.StaffOnFloor(ctx, "2")
	if err != nil {
		t.Fatalf("StaffOnFloor returned error: %v", err)
	}
	if len(onFloor) != 1 {
		t.Fatalf("expected the assignment to reach the directory, got %d", len(onFloor))
	}

	_, err = svc.ListStaff(ctx, testfixtures.Student, "")
	expectError(t, err, application.ErrForbidden)

	listed, err := svc.ListStaff(ctx, testfixtures.FloorStaff, "2F")
	if err != nil {
		t.Fatalf("ListStaff returned error: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "staff-9" {
		t.Fatalf("unexpected staff list %+v", listed)
	}
}
