// Package sqlite opens the embedded SQL store used when database.driver is "sqlite".
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	moderncsqlite "modernc.org/sqlite" // registers the "sqlite" driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kailas-cloud/cvgen/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS probe_definitions (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL,
	category    TEXT,
	severity    TEXT,
	is_active   INTEGER NOT NULL DEFAULT 1,
	error_map   TEXT,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS probe_sessions (
	id        TEXT PRIMARY KEY,
	probe_ids TEXT NOT NULL,
	issued_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS probe_results (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	probe_id          TEXT NOT NULL REFERENCES probe_definitions(id),
	started_at        INTEGER NOT NULL,
	finished_at       INTEGER NOT NULL,
	duration_ms       INTEGER NOT NULL,
	duration_clamped  INTEGER NOT NULL DEFAULT 0,
	status            TEXT NOT NULL CHECK (status IN ('pass', 'fail')),
	error_code        TEXT,
	raw               TEXT,
	ai_explanation    TEXT,
	ai_fix_suggestion TEXT,
	created_at        INTEGER NOT NULL,
	UNIQUE (session_id, probe_id)
);
CREATE INDEX IF NOT EXISTS idx_results_session ON probe_results(session_id);
CREATE INDEX IF NOT EXISTS idx_results_probe ON probe_results(probe_id);
CREATE INDEX IF NOT EXISTS idx_results_created ON probe_results(created_at);
`

// DB wraps the SQLite connection pool.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// ":memory:" is accepted for ephemeral stores.
func Open(path string) (*DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("open %s: %w", path, err)}
	}

	// SQLite has a single writer: one connection serializes concurrent inserts.
	sqlDB.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = sqlDB.Close()
			return nil, &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("enable WAL: %w", err)}
		}
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("apply schema: %w", err)}
	}

	return &DB{db: sqlDB}, nil
}

// SQL exposes the pool to repositories.
func (d *DB) SQL() *sql.DB { return d.db }

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close closes the pool.
func (d *DB) Close() {
	_ = d.db.Close()
}

// IsUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	code, ok := errorCode(err)
	return ok && (code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

// IsForeignKeyViolation reports a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	code, ok := errorCode(err)
	return ok && code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// errorCode extracts the extended result code; the driver enables extended codes on every connection.
func errorCode(err error) (int, bool) {
	var e *moderncsqlite.Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Code(), true
}
