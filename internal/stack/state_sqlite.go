// File: internal/stack/state_sqlite.go
// Brief: Sqlite-backed run, status, and attempt history.

package stack

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const stateSQLiteRelPath = ".stackr/state.sqlite"

// StateStore persists run history so `stackr runs` and `stackr status`
// can report on past orchestrations, including the full per-stack
// attempt log.
type StateStore struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// OpenStateStore opens (and for writers, initializes) the state
// database under root.
func OpenStateStore(root string, readOnly bool) (*StateStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(absRoot, stateSQLiteRelPath)
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	dsn := path
	if readOnly {
		u := url.URL{Scheme: "file", Path: path}
		q := u.Query()
		q.Set("mode", "ro")
		q.Set("_busy_timeout", "5000")
		u.RawQuery = q.Encode()
		dsn = u.String()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &StateStore{db: db, path: path, readOnly: readOnly}
	if !readOnly {
		if err := s.initSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *StateStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *StateStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA foreign_keys=ON;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS stackr_runs (
  run_id TEXT PRIMARY KEY,
  command TEXT NOT NULL,
  owner TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at_ns INTEGER NOT NULL,
  updated_at_ns INTEGER NOT NULL,
  order_json TEXT NOT NULL,
  summary_json TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS stackr_stacks (
  run_id TEXT NOT NULL,
  name TEXT NOT NULL,
  status TEXT NOT NULL,
  attempts INTEGER NOT NULL,
  error TEXT NOT NULL,
  PRIMARY KEY (run_id, name),
  FOREIGN KEY (run_id) REFERENCES stackr_runs(run_id) ON DELETE CASCADE
);`,
		`
CREATE TABLE IF NOT EXISTS stackr_attempts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  stack TEXT NOT NULL,
  number INTEGER NOT NULL,
  started_at_ns INTEGER NOT NULL,
  duration_ns INTEGER NOT NULL,
  exit_code INTEGER NOT NULL,
  class TEXT NOT NULL,
  retryable INTEGER NOT NULL,
  output TEXT NOT NULL,
  FOREIGN KEY (run_id) REFERENCES stackr_runs(run_id) ON DELETE CASCADE
);`,
		`CREATE INDEX IF NOT EXISTS idx_stackr_attempts_run_stack ON stackr_attempts(run_id, stack, number);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// CreateRun inserts the run header with its planned order and seeds a
// pending row per stack.
func (s *StateStore) CreateRun(ctx context.Context, runID, command, owner string, order []string) error {
	now := time.Now().UTC().UnixNano()
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO stackr_runs (run_id, command, owner, status, created_at_ns, updated_at_ns, order_json, summary_json)
VALUES (?, ?, ?, ?, ?, ?, ?, '{}')`,
		runID, command, owner, "running", now, now, string(orderJSON)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, name := range order {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO stackr_stacks (run_id, name, status, attempts, error) VALUES (?, ?, ?, 0, '')`,
			runID, name, string(StatusUnapplied)); err != nil {
			return fmt.Errorf("insert stack row: %w", err)
		}
	}
	return tx.Commit()
}

// SetStackStatus records a lifecycle transition for one stack.
func (s *StateStore) SetStackStatus(ctx context.Context, runID, name string, status Status, attempts int, errMsg string) error {
	now := time.Now().UTC().UnixNano()
	if _, err := s.db.ExecContext(ctx, `
UPDATE stackr_stacks SET status = ?, attempts = ?, error = ? WHERE run_id = ? AND name = ?`,
		string(status), attempts, errMsg, runID, name); err != nil {
		return fmt.Errorf("update stack status: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
UPDATE stackr_runs SET updated_at_ns = ? WHERE run_id = ?`, now, runID); err != nil {
		return fmt.Errorf("touch run: %w", err)
	}
	return nil
}

// AppendAttempt records one command invocation for observability.
func (s *StateStore) AppendAttempt(ctx context.Context, runID, stack string, a Attempt) error {
	retryable := 0
	if a.Retryable {
		retryable = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO stackr_attempts (run_id, stack, number, started_at_ns, duration_ns, exit_code, class, retryable, output)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, stack, a.Number, a.StartedAt.UnixNano(), int64(a.Duration), a.ExitCode, a.Class, retryable, a.Output)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// FinishRun stores the final status and summary.
func (s *StateStore) FinishRun(ctx context.Context, runID string, result *RunResult) error {
	summaryJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	now := time.Now().UTC().UnixNano()
	if _, err := s.db.ExecContext(ctx, `
UPDATE stackr_runs SET status = ?, summary_json = ?, updated_at_ns = ? WHERE run_id = ?`,
		result.Status, string(summaryJSON), now, runID); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RunIndexEntry is a compact summary of a run, used by `stackr runs`.
type RunIndexEntry struct {
	RunID     string `json:"runId"`
	Command   string `json:"command"`
	Owner     string `json:"owner"`
	Status    string `json:"status"`
	StartedAt string `json:"startedAt"`
	UpdatedAt string `json:"updatedAt"`
	Stacks    int    `json:"stacks"`
}

// ListRuns returns the most recent runs, newest first.
func (s *StateStore) ListRuns(ctx context.Context, limit int) ([]RunIndexEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT r.run_id, r.command, r.owner, r.status, r.created_at_ns, r.updated_at_ns,
       (SELECT COUNT(*) FROM stackr_stacks st WHERE st.run_id = r.run_id)
FROM stackr_runs r ORDER BY r.created_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunIndexEntry
	for rows.Next() {
		var e RunIndexEntry
		var createdNS, updatedNS int64
		if err := rows.Scan(&e.RunID, &e.Command, &e.Owner, &e.Status, &createdNS, &updatedNS, &e.Stacks); err != nil {
			return nil, err
		}
		e.StartedAt = time.Unix(0, createdNS).UTC().Format(time.RFC3339)
		e.UpdatedAt = time.Unix(0, updatedNS).UTC().Format(time.RFC3339)
		out = append(out, e)
	}
	return out, rows.Err()
}

// StackRecord is one stack's final state within a stored run.
type StackRecord struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// RunRecord is a stored run with per-stack outcomes.
type RunRecord struct {
	RunIndexEntry
	Order   []string      `json:"order"`
	StacksD []StackRecord `json:"stackRecords"`
	Summary *RunResult    `json:"summary,omitempty"`
}

// GetRun loads one run with its stack rows and summary.
func (s *StateStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	var createdNS, updatedNS int64
	var orderJSON, summaryJSON string
	err := s.db.QueryRowContext(ctx, `
SELECT run_id, command, owner, status, created_at_ns, updated_at_ns, order_json, summary_json
FROM stackr_runs WHERE run_id = ?`, runID).
		Scan(&rec.RunID, &rec.Command, &rec.Owner, &rec.Status, &createdNS, &updatedNS, &orderJSON, &summaryJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, err
	}
	rec.StartedAt = time.Unix(0, createdNS).UTC().Format(time.RFC3339)
	rec.UpdatedAt = time.Unix(0, updatedNS).UTC().Format(time.RFC3339)
	if err := json.Unmarshal([]byte(orderJSON), &rec.Order); err != nil {
		return nil, fmt.Errorf("decode run order: %w", err)
	}
	if summaryJSON != "" && summaryJSON != "{}" {
		var summary RunResult
		if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
			return nil, fmt.Errorf("decode run summary: %w", err)
		}
		rec.Summary = &summary
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT name, status, attempts, error FROM stackr_stacks WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byName := map[string]StackRecord{}
	for rows.Next() {
		var sr StackRecord
		if err := rows.Scan(&sr.Name, &sr.Status, &sr.Attempts, &sr.Error); err != nil {
			return nil, err
		}
		byName[sr.Name] = sr
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, name := range rec.Order {
		if sr, ok := byName[name]; ok {
			rec.StacksD = append(rec.StacksD, sr)
		}
	}
	rec.Stacks = len(rec.StacksD)
	return &rec, nil
}

// Attempts returns the recorded attempt log for one stack in a run.
func (s *StateStore) Attempts(ctx context.Context, runID, stack string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT number, started_at_ns, duration_ns, exit_code, class, retryable, output
FROM stackr_attempts WHERE run_id = ? AND stack = ? ORDER BY number`, runID, stack)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		var a Attempt
		var startedNS, durationNS int64
		var retryable int
		if err := rows.Scan(&a.Number, &startedNS, &durationNS, &a.ExitCode, &a.Class, &retryable, &a.Output); err != nil {
			return nil, err
		}
		a.StartedAt = time.Unix(0, startedNS).UTC()
		a.Duration = time.Duration(durationNS)
		a.Retryable = retryable != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// MostRecentRunID returns the newest run id, or an error when no run
// has been recorded yet.
func (s *StateStore) MostRecentRunID(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `
SELECT run_id FROM stackr_runs ORDER BY created_at_ns DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no runs recorded")
	}
	return runID, err
}
