// Package database provides SQLite connectivity for the vueflux channel catalog.
//
// It wraps database/sql with the mattn/go-sqlite3 driver, configuring WAL
// mode, busy timeouts, and a single-writer connection pool suited to SQLite.
// Schema changes are applied through an in-code migration list, each in its
// own transaction, tracked in the schema_migrations table.
//
// The catalog database is an operational convenience, not a source of truth:
// losing it only means rediscovered channels are logged again.
package database
