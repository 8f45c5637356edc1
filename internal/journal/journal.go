// Package journal keeps an append-only audit log of dispatched operations.
// It is never consulted to reconstruct session state.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Entry is one completed or failed operation.
type Entry struct {
	ID          int64         `json:"id"`
	SessionID   string        `json:"session_id"`
	Op          string        `json:"op"`
	Filename    string        `json:"filename,omitempty"`
	Status      string        `json:"status"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	Error       string        `json:"error,omitempty"`
	Artifacts   []string      `json:"artifacts"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"-"`
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

func (j *Journal) Record(ctx context.Context, e Entry) error {
	artifacts := e.Artifacts
	if artifacts == nil {
		artifacts = []string{}
	}
	raw, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
INSERT INTO operation_log(session_id, op, filename, status, error_kind, error, artifacts, started_at, completed_at, duration_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.SessionID, e.Op, e.Filename, e.Status, e.ErrorKind, e.Error, string(raw),
		e.StartedAt.UTC().Format(timeLayout),
		e.CompletedAt.UTC().Format(timeLayout),
		e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

// ListBySession returns the newest entries for a session first.
func (j *Journal) ListBySession(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, session_id, op, COALESCE(filename, ''), status, COALESCE(error_kind, ''), COALESCE(error, ''),
       artifacts, started_at, completed_at, duration_ms
FROM operation_log
WHERE session_id = ?
ORDER BY id DESC
LIMIT ?;`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			rawArtifacts       string
			started, completed string
			durationMS         int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Op, &e.Filename, &e.Status, &e.ErrorKind, &e.Error,
			&rawArtifacts, &started, &completed, &durationMS); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		if err := json.Unmarshal([]byte(rawArtifacts), &e.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts for operation %d: %w", e.ID, err)
		}
		e.StartedAt, _ = time.Parse(timeLayout, started)
		e.CompletedAt, _ = time.Parse(timeLayout, completed)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries completed more than retention ago.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := j.now().Add(-retention).UTC().Format(timeLayout)
	res, err := j.db.ExecContext(ctx, `DELETE FROM operation_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune operations: %w", err)
	}
	return res.RowsAffected()
}
