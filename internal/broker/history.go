package broker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/TUM-Dev/VMP/internal/persistence/sqlite"
)

const (
	historySchemaVersion = 1
	historyRetainRows    = 500
)

const historySchema = `
CREATE TABLE IF NOT EXISTS recording_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	uid         TEXT NOT NULL,
	path        TEXT NOT NULL,
	profile_type TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT,
	status      TEXT NOT NULL
);
`

// History is a write-behind audit log of every recording start/end
// transition. The broker's own uniqueness and lookup logic never reads
// it back — it exists purely so an operator can ask
// GET /api/v1/recordings?includeHistory=1 what happened across a
// restart.
type History struct {
	db *sql.DB
}

// OpenHistory opens (or creates) the recording-history database at path.
// It may share a path with a calendar.Store — the schema has its own
// table, so co-locating the two is safe.
func OpenHistory(path string) (*History, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(db, historySchemaVersion, historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("broker: migrate history: %w", err)
	}
	return &History{db: db}, nil
}

// RecordStart appends a row with status "active" and trims the table back to the
// most recent historyRetainRows entries.
func (h *History) RecordStart(ctx context.Context, uid, path, profileType string) error {
	if h == nil {
		return nil
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO recording_history (uid, path, profile_type, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		uid, path, profileType, time.Now().UTC().Format(time.RFC3339), "active")
	if err != nil {
		return fmt.Errorf("broker: record history start: %w", err)
	}
	return h.trim(ctx)
}

// RecordEnd updates the most recent open row for uid with its final
// status.
func (h *History) RecordEnd(ctx context.Context, uid, status string) error {
	if h == nil {
		return nil
	}
	_, err := h.db.ExecContext(ctx,
		`UPDATE recording_history SET ended_at = ?, status = ?
		 WHERE id = (SELECT id FROM recording_history WHERE uid = ? AND ended_at IS NULL ORDER BY id DESC LIMIT 1)`,
		time.Now().UTC().Format(time.RFC3339), status, uid)
	if err != nil {
		return fmt.Errorf("broker: record history end: %w", err)
	}
	return nil
}

func (h *History) trim(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx,
		`DELETE FROM recording_history WHERE id NOT IN (
			SELECT id FROM recording_history ORDER BY id DESC LIMIT ?
		)`, historyRetainRows)
	return err
}

// HistoryRow is one recording_history entry, returned by List.
type HistoryRow struct {
	UID         string
	Path        string
	ProfileType string
	StartedAt   time.Time
	EndedAt     *time.Time
	Status      string
}

// List returns the most recent history rows, newest first.
func (h *History) List(ctx context.Context, limit int) ([]HistoryRow, error) {
	if h == nil {
		return nil, nil
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT uid, path, profile_type, started_at, ended_at, status FROM recording_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("broker: list history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var started string
		var ended sql.NullString
		if err := rows.Scan(&r.UID, &r.Path, &r.ProfileType, &started, &ended, &r.Status); err != nil {
			return nil, fmt.Errorf("broker: scan history row: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if ended.Valid {
			t, _ := time.Parse(time.RFC3339, ended.String)
			r.EndedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (h *History) Close() error {
	if h == nil {
		return nil
	}
	return h.db.Close()
}
