// Package catalog keeps an index of finished recordings in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"eufy-bridge/pkg/models"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Stats summarizes the catalog for the metrics exporter.
type Stats struct {
	Total    int
	Bytes    int64
	ByReason map[string]int
}

// Store is a SQLite-backed recording index.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; sqlite serializes anyway.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS recordings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL,
  serial TEXT NOT NULL,
  started_at TEXT NOT NULL,
  ended_at TEXT NOT NULL,
  bytes INTEGER NOT NULL,
  chunks INTEGER NOT NULL,
  reason TEXT NOT NULL,
  killed INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create recordings table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS recordings_started ON recordings(started_at);`); err != nil {
		return fmt.Errorf("create recordings index: %w", err)
	}
	return nil
}

// Insert stores rec and returns its row id.
func (s *Store) Insert(ctx context.Context, rec models.Recording) (int64, error) {
	const stmt = `
INSERT INTO recordings (path, serial, started_at, ended_at, bytes, chunks, reason, killed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`
	killed := 0
	if rec.Killed {
		killed = 1
	}
	res, err := s.db.ExecContext(ctx, stmt,
		rec.Path,
		rec.Serial,
		rec.StartedAt.UTC().Format(timeLayout),
		rec.EndedAt.UTC().Format(timeLayout),
		rec.Bytes,
		rec.Chunks,
		string(rec.Reason),
		killed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert recording: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert recording: %w", err)
	}
	return id, nil
}

// List returns up to limit recordings, newest first. A non-positive limit
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]models.Recording, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, path, serial, started_at, ended_at, bytes, chunks, reason, killed
FROM recordings
ORDER BY started_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []models.Recording
	for rows.Next() {
		var (
			rec            models.Recording
			started, ended string
			reason         string
			killed         int
		)
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Serial, &started, &ended, &rec.Bytes, &rec.Chunks, &reason, &killed); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("recording %d: bad started_at: %w", rec.ID, err)
		}
		if rec.EndedAt, err = time.Parse(timeLayout, ended); err != nil {
			return nil, fmt.Errorf("recording %d: bad ended_at: %w", rec.ID, err)
		}
		rec.Reason = models.EndReason(reason)
		rec.Killed = killed != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return out, nil
}

// Stats aggregates counts and sizes per end reason.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT reason, COUNT(*), COALESCE(SUM(bytes), 0)
FROM recordings
GROUP BY reason;
`)
	if err != nil {
		return Stats{}, fmt.Errorf("catalog stats: %w", err)
	}
	defer rows.Close()

	st := Stats{ByReason: map[string]int{}}
	for rows.Next() {
		var (
			reason string
			n      int
			bytes  int64
		)
		if err := rows.Scan(&reason, &n, &bytes); err != nil {
			return Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		st.ByReason[reason] = n
		st.Total += n
		st.Bytes += bytes
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("catalog stats: %w", err)
	}
	return st, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
