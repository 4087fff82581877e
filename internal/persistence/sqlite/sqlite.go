// Package sqlite provides the pure-Go, WAL-mode SQLite connection shared
// by every component that persists state across a restart (the calendar
// scheduler's KnownUIDs set and the recording broker's history log).
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Config captures the connection-pool and PRAGMA settings applied to
// every connection.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the settings used by every caller in this repo
// unless overridden in a test.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// Open opens (creating if necessary) the database at path with WAL mode,
// a busy timeout, and foreign keys enabled — applied via DSN pragmas so
// they take effect on every pooled connection, not just the first.
func Open(path string, cfg Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}

	return db, nil
}

// Migrate runs schema (expected to be idempotent CREATE TABLE IF NOT
// EXISTS statements) inside a transaction and advances PRAGMA
// user_version to targetVersion if the database is currently behind it.
func Migrate(db *sql.DB, targetVersion int, schema string) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	if current < targetVersion {
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", targetVersion)); err != nil {
			return fmt.Errorf("sqlite: set schema version: %w", err)
		}
	}
	return tx.Commit()
}
