// Package persistence durably records swarm runs and their event streams in
// SQLite, grounded on internal/events/store.go's SQLiteStore (same table
// shape, query style, and Cleanup idiom) and
// _examples/ODSapper-CLIAIMONITOR/internal/memory/db.go's WAL-mode
// connection setup. Unlike events.SQLiteStore (which tracks undelivered
// bus messages), RunStore tracks completed OrchestrationResults and their
// associated swarm_events for after-the-fact inspection via the transport
// layer.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brandista/swarm/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	result       TEXT,
	created_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS swarm_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	type       TEXT NOT NULL,
	source     TEXT NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	payload    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_swarm_events_run ON swarm_events(run_id, id);
`

// RunStore persists run records and their swarm event streams.
type RunStore struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path, applying
// the reference's WAL/busy-timeout pragma convention, and initializes the
// schema.
func Open(path string) (*RunStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("persistence: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("persistence: open db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &RunStore{db: db}
	if _, err := s.db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: init schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// RunRecord is a stored run, its terminal status, and its full result once
// available.
type RunRecord struct {
	RunID       string                      `json:"run_id"`
	UserID      string                      `json:"user_id,omitempty"`
	URL         string                      `json:"url"`
	Status      types.RunStatus             `json:"status"`
	Result      *types.OrchestrationResult  `json:"result,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
}

// SaveRun inserts or updates a run row from a RunContext-style snapshot.
func (s *RunStore) SaveRun(runID, userID, url string, status types.RunStatus, result *types.OrchestrationResult, createdAt time.Time, completedAt *time.Time) error {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("persistence: marshal result: %w", err)
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, user_id, url, status, result, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			completed_at = excluded.completed_at
	`, runID, userID, url, string(status), nullableString(resultJSON), createdAt, completedAt)
	if err != nil {
		return fmt.Errorf("persistence: save run: %w", err)
	}
	return nil
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// GetRun returns one run by id, or nil if unknown.
func (s *RunStore) GetRun(runID string) (*RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT run_id, user_id, url, status, result, created_at, completed_at
		FROM runs WHERE run_id = ?
	`, runID)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns up to limit most recently created runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, user_id, url, status, result, created_at, completed_at
		FROM runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("persistence: list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("persistence: scan run row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: iterate run rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(r scanner) (*RunRecord, error) {
	var rec RunRecord
	var status, resultJSON sql.NullString
	var completedAt sql.NullTime
	if err := r.Scan(&rec.RunID, &rec.UserID, &rec.URL, &status, &resultJSON, &rec.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	rec.Status = types.RunStatus(status.String)
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result types.OrchestrationResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshal stored result: %w", err)
		}
		rec.Result = &result
	}
	return &rec, nil
}

// DeleteRun removes a run and its events, returning false if it did not
// exist.
func (s *RunStore) DeleteRun(runID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return false, fmt.Errorf("persistence: delete run: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM swarm_events WHERE run_id = ?`, runID); err != nil {
		return false, fmt.Errorf("persistence: delete run events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("persistence: rows affected: %w", err)
	}
	return n > 0, nil
}

// AppendEvent persists one swarm event against a run, mirroring
// events.SQLiteStore.Save's marshal-and-insert shape.
func (s *RunStore) AppendEvent(runID string, event types.SwarmEvent) error {
	payloadJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("persistence: marshal event payload: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO swarm_events (run_id, type, source, target, subject, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, string(event.Kind), event.Source, event.Target, event.Subject, string(payloadJSON), event.Timestamp)
	if err != nil {
		return fmt.Errorf("persistence: append event: %w", err)
	}
	return nil
}

// GetEvents returns up to limit events for runID with id greater than
// sinceID, oldest first, for incremental polling by the transport layer.
func (s *RunStore) GetEvents(runID string, sinceID int64, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(`
		SELECT id, type, source, target, subject, payload, created_at
		FROM swarm_events WHERE run_id = ? AND id > ?
		ORDER BY id ASC LIMIT ?
	`, runID, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("persistence: get events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var payloadJSON string
		if err := rows.Scan(&se.ID, &se.Event.Kind, &se.Event.Source, &se.Event.Target, &se.Event.Subject, &payloadJSON, &se.Event.Timestamp); err != nil {
			return nil, fmt.Errorf("persistence: scan event row: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &se.Event.Data); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal event payload: %w", err)
		}
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: iterate event rows: %w", err)
	}
	return out, nil
}

// StoredEvent is a swarm event with its monotonic storage id, used by
// callers to resume polling from the last seen id.
type StoredEvent struct {
	ID    int64
	Event types.SwarmEvent
}

// Cleanup deletes runs (and their events) completed before cutoff, mirroring
// events.SQLiteStore.Cleanup's age-based deletion.
func (s *RunStore) Cleanup(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.Exec(`DELETE FROM runs WHERE completed_at IS NOT NULL AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("persistence: cleanup runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("persistence: rows affected: %w", err)
	}
	if _, err := s.db.Exec(`
		DELETE FROM swarm_events WHERE run_id NOT IN (SELECT run_id FROM runs)
	`); err != nil {
		return n, fmt.Errorf("persistence: cleanup orphaned events: %w", err)
	}
	return n, nil
}
