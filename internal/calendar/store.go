package calendar

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/TUM-Dev/VMP/internal/persistence/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS known_events (
	uid        TEXT PRIMARY KEY,
	start_date TEXT NOT NULL,
	fired      BOOLEAN NOT NULL DEFAULT 0
);
`

// Record is one persisted KnownUIDs entry.
type Record struct {
	UID       string
	StartDate time.Time
	Fired     bool
}

// Store persists the set of calendar UIDs already accepted by the
// scheduler, surviving a process restart. Only the UID set is
// persisted, not the full event bodies.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Add(ctx context.Context, uid string, startDate time.Time) error
	MarkFired(ctx context.Context, uid string) error
	Close() error
}

// SQLiteStore is the production Store, backed by a WAL-mode sqlite
// database shared with internal/broker's history log.
type SQLiteStore struct {
	db *sql.DB
}

// OpenStore opens (or creates) the KnownUIDs database at path.
func OpenStore(path string) (*SQLiteStore, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(db, schemaVersion, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("calendar: migrate store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT uid, start_date, fired FROM known_events")
	if err != nil {
		return nil, fmt.Errorf("calendar: load known events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var startDate string
		if err := rows.Scan(&r.UID, &startDate, &r.Fired); err != nil {
			return nil, fmt.Errorf("calendar: scan known event: %w", err)
		}
		r.StartDate, _ = time.Parse(time.RFC3339, startDate)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Add(ctx context.Context, uid string, startDate time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO known_events (uid, start_date, fired) VALUES (?, ?, 0)
		 ON CONFLICT(uid) DO NOTHING`,
		uid, startDate.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("calendar: add known event %s: %w", uid, err)
	}
	return nil
}

func (s *SQLiteStore) MarkFired(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE known_events SET fired = 1 WHERE uid = ?", uid)
	if err != nil {
		return fmt.Errorf("calendar: mark fired %s: %w", uid, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// MemoryStore is an in-memory Store for tests and for running without a
// scratch directory configured.
type MemoryStore struct {
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Load(context.Context) ([]Record, error) {
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryStore) Add(_ context.Context, uid string, startDate time.Time) error {
	if _, exists := m.records[uid]; exists {
		return nil
	}
	m.records[uid] = Record{UID: uid, StartDate: startDate}
	return nil
}

func (m *MemoryStore) MarkFired(_ context.Context, uid string) error {
	r, ok := m.records[uid]
	if !ok {
		return nil
	}
	r.Fired = true
	m.records[uid] = r
	return nil
}

func (m *MemoryStore) Close() error { return nil }
