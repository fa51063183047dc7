package migration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(DefaultSQLiteConfig(filepath.Join(t.TempDir(), "migrate.db")))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerRunAppliesPendingOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"schema/001_rooms.sql":   {Data: []byte("CREATE TABLE rooms (id TEXT PRIMARY KEY);")},
		"schema/002_indexes.sql": {Data: []byte("CREATE INDEX idx_rooms_id ON rooms (id);")},
	}
	manager := NewManager(NewScanner(fsys, "schema"), NewExecutor(db), quietLogger())

	applied, err := manager.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected two migrations applied, got %v", applied)
	}

	again, err := manager.Run(ctx)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no migrations on second run, got %v", again)
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.CurrentVersion != "002" || len(status.Pending) != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestManagerRollsBackFailedMigration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"schema/001_ok.sql":     {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"schema/002_broken.sql": {Data: []byte("CREATE TABLE half (id TEXT);\nINSERT INTO missing_table VALUES (1);")},
	}
	manager := NewManager(NewScanner(fsys, "schema"), NewExecutor(db), quietLogger())

	applied, err := manager.Run(ctx)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	if len(applied) != 1 || applied[0] != "001" {
		t.Fatalf("expected only 001 applied, got %v", applied)
	}

	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'half'`); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected failed migration to be rolled back")
	}
}

func TestManagerDetectsEditedMigration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	original := fstest.MapFS{
		"schema/001_rooms.sql": {Data: []byte("CREATE TABLE rooms (id TEXT);")},
	}
	if _, err := NewManager(NewScanner(original, "schema"), NewExecutor(db), quietLogger()).Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	edited := fstest.MapFS{
		"schema/001_rooms.sql": {Data: []byte("CREATE TABLE rooms (id TEXT, name TEXT);")},
	}
	_, err := NewManager(NewScanner(edited, "schema"), NewExecutor(db), quietLogger()).Run(ctx)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}

	_, err = NewManager(NewScanner(fstest.MapFS{"schema/README": {Data: []byte("x")}}, "schema"), NewExecutor(db), quietLogger()).Run(ctx)
	if !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}
