package migration

import (
	"context"
	"fmt"
	"log/slog"
)

// Manager compares the migration files with the database and applies what is missing.
type Manager struct {
	scanner  *Scanner
	executor *Executor
	logger   *slog.Logger
}

// NewManager wires a scanner and executor. A nil logger uses slog.Default.
func NewManager(scanner *Scanner, executor *Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{scanner: scanner, executor: executor, logger: logger.With("component", "migration")}
}

// Run applies every pending migration in version order and returns the applied versions.
func (m *Manager) Run(ctx context.Context) ([]string, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	if len(status.Pending) == 0 {
		m.logger.DebugContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return nil, nil
	}

	applied := make([]string, 0, len(status.Pending))
	for _, migration := range status.Pending {
		if err := m.executor.Apply(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", migration.Version, "error", err)
			return applied, err
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
		)
		applied = append(applied, migration.Version)
	}
	return applied, nil
}

// Status reports applied and pending migrations. It fails when an applied migration's file
// changed or disappeared.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}

	available, err := m.scanner.Scan()
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}

	byVersion := make(map[string]Migration, len(available))
	for _, migration := range available {
		byVersion[migration.Version] = migration
	}

	status := Status{Applied: applied}
	done := make(map[string]struct{}, len(applied))
	for _, row := range applied {
		source, ok := byVersion[row.Version]
		if !ok {
			return Status{}, NewMigrationError(row.Version, "", "verify applied", ErrUnknownVersion)
		}
		if row.Checksum != "" && row.Checksum != source.Checksum {
			return Status{}, NewMigrationError(row.Version, source.FilePath, "verify checksum",
				fmt.Errorf("%w: recorded %s, file %s", ErrChecksumMismatch, row.Checksum, source.Checksum))
		}
		done[row.Version] = struct{}{}
		status.CurrentVersion = row.Version
	}

	for _, migration := range available {
		if _, ok := done[migration.Version]; !ok {
			status.Pending = append(status.Pending, migration)
		}
	}
	return status, nil
}
