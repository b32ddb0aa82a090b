package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const maxStderrBytes = 64 * 1024

// Entry is one completed (or failed) script run.
type Entry struct {
	ID          string    `json:"id"`
	Script      string    `json:"script"`
	Status      string    `json:"status"`
	ExitCode    int       `json:"exit_code"`
	DurationMs  int64     `json:"duration_ms"`
	Stderr      string    `json:"stderr,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store persists run history rows in SQLite. History does not survive as an
// execution dependency: the engine records best-effort and never fails a run
// on a history error.
type Store struct {
	db *sql.DB
}

// New creates a Store over an opened database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts one history row.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	if e.Script == "" {
		return fmt.Errorf("entry script is empty")
	}

	stderr := e.Stderr
	if len(stderr) > maxStderrBytes {
		stderr = stderr[:maxStderrBytes]
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO run_history(id, script, status, exit_code, duration_ms, stderr, started_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`,
		e.ID, e.Script, e.Status, e.ExitCode, e.DurationMs, stderr,
		e.StartedAt.UTC().Format(time.RFC3339Nano),
		e.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns up to limit history entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, script, status, exit_code, duration_ms, stderr, started_at, completed_at
FROM run_history
ORDER BY started_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			stderr     sql.NullString
			startedS   string
			completedS string
		)
		if err := rows.Scan(&e.ID, &e.Script, &e.Status, &e.ExitCode, &e.DurationMs, &stderr, &startedS, &completedS); err != nil {
			return nil, fmt.Errorf("scan run history: %w", err)
		}
		if stderr.Valid {
			e.Stderr = stderr.String
		}
		if t, err := time.Parse(time.RFC3339Nano, startedS); err == nil {
			e.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, completedS); err == nil {
			e.CompletedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
