// Package store persists analysis reports in SQLite so past runs stay
// queryable through the API.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pagepulse/pagepulse/internal/report"
)

// ErrNotFound is returned when no report exists under the requested id.
var ErrNotFound = errors.New("report not found")

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	score      INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	payload    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at DESC);
`

// Store is a SQLite-backed report archive. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// The driver serializes writes; one connection avoids lock churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save archives one report. The full report is kept as a JSON payload;
// id, url, and score are extracted for listing without decoding.
func (s *Store) Save(ctx context.Context, rep *report.AnalysisReport) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (id, url, score, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
		rep.ID, rep.URL, rep.Score, rep.GeneratedAt, payload)
	if err != nil {
		return fmt.Errorf("save report %s: %w", rep.ID, err)
	}
	return nil
}

// Get loads one report by id.
func (s *Store) Get(ctx context.Context, id string) (*report.AnalysisReport, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM reports WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", id, err)
	}
	var rep report.AnalysisReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &rep, nil
}

// Entry is a listing row, cheap enough to return in bulk.
type Entry struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
}

// List returns the most recent reports, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, score, created_at FROM reports ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.URL, &e.Score, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
