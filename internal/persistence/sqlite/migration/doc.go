// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migrations are read from an fs.FS (normally an embed.FS compiled into the binary) and must
// be named {version}_{description}.sql, e.g. "001_reservations.sql". Applied versions and
// their checksums are tracked in the schema_migrations table; each migration runs in its own
// transaction together with its bookkeeping row.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(schemaFS, "schema"), migration.NewExecutor(db), logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
