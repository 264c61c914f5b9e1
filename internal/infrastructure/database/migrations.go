package database

import (
	"context"
	"fmt"
)

// migrations holds the catalog schema, applied in order.
//
// Each entry runs in its own transaction: if migration N fails, migrations
// 1..N-1 remain committed, N is rolled back, and the error is returned.
// Re-running Migrate() after fixing the issue continues from N.
var migrations = []migration{
	{
		version: "20260301_000001",
		name:    "create_channels",
		sql: `CREATE TABLE IF NOT EXISTS channels (
			account_name   TEXT NOT NULL,
			device_gid     INTEGER NOT NULL,
			channel_num    TEXT NOT NULL,
			name           TEXT NOT NULL DEFAULT '',
			first_seen     TEXT NOT NULL,
			last_seen      TEXT NOT NULL,
			PRIMARY KEY (account_name, device_gid, channel_num)
		)`,
	},
	{
		version: "20260301_000002",
		name:    "create_devices",
		sql: `CREATE TABLE IF NOT EXISTS devices (
			account_name   TEXT NOT NULL,
			device_gid     INTEGER NOT NULL,
			name           TEXT NOT NULL DEFAULT '',
			first_seen     TEXT NOT NULL,
			last_seen      TEXT NOT NULL,
			PRIMARY KEY (account_name, device_gid)
		)`,
	},
}

// migration is a single schema change.
type migration struct {
	version string
	name    string
	sql     string
}

// Migrate applies all pending migrations to the database.
// Migrations are applied in declaration order, each in its own transaction.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If any migration fails (that migration is rolled back)
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.version, m.name, err)
		}
	}

	return nil
}

// createMigrationsTable ensures the schema_migrations bookkeeping table exists.
func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`)
	return err
}

// appliedVersions returns the set of migration versions already applied.
func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// applyMigration runs one migration inside a transaction and records it.
func (db *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op if committed

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return err
	}

	return tx.Commit()
}
