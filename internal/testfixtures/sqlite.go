package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/facility-booking/internal/persistence"
	"github.com/example/facility-booking/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary, migrated SQLite database.
type SQLiteHarness struct {
	Storage       *sqlite.Storage
	Reservations  persistence.ReservationRepository
	Notifications persistence.NotificationRepository
	Staff         persistence.StaffRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a database file under tb.TempDir. Close is registered as
// a cleanup, so calling it is optional.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "booking.db")
	storage, err := sqlite.Open(path)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:       storage,
		Reservations:  storage.Reservations(),
		Notifications: storage.Notifications(),
		Staff:         storage.Staff(),
		cleanup: func() {
			_ = storage.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}
