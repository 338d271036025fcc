// Package store keeps the history of assistant runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one execution of an assistant section.
type Run struct {
	ID         string       `db:"id"`
	Assistant  string       `db:"assistant"`
	Section    string       `db:"section"`
	Status     string       `db:"status"`
	Error      string       `db:"error"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if !r.FinishedAt.Valid {
		return 0
	}
	return r.FinishedAt.Time.Sub(r.StartedAt)
}

// Event is one command dispatched during a run.
type Event struct {
	ID         int64     `db:"id"`
	RunID      string    `db:"run_id"`
	Directive  string    `db:"directive"`
	Input      string    `db:"input"`
	OK         bool      `db:"ok"`
	Output     string    `db:"output"`
	Error      string    `db:"error"`
	DurationMS int64     `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store is a SQLite-backed run history.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the database at path and creates the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the schema tables.
func (s *Store) Init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		assistant   TEXT NOT NULL,
		section     TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'running',
		error       TEXT NOT NULL DEFAULT '',
		started_at  DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		directive   TEXT NOT NULL,
		input       TEXT NOT NULL DEFAULT '',
		ok          BOOLEAN NOT NULL DEFAULT 0,
		output      TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertRun records the start of a run.
func (s *Store) InsertRun(ctx context.Context, r Run) error {
	if r.Status == "" {
		r.Status = StatusRunning
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO runs (id, assistant, section, status, error, started_at, finished_at)
		 VALUES (:id, :assistant, :section, :status, :error, :started_at, :finished_at)`, r)
	return err
}

// FinishRun sets the final status of a run.
func (s *Store) FinishRun(ctx context.Context, id, status, errMsg string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, finishedAt, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// InsertEvent records a dispatched command.
func (s *Store) InsertEvent(ctx context.Context, e Event) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO events (run_id, directive, input, ok, output, error, duration_ms, created_at)
		 VALUES (:run_id, :directive, :input, :ok, :output, :error, :duration_ms, :created_at)`, e)
	return err
}

// GetRun returns a single run.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := s.db.GetContext(ctx, &r, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		`SELECT * FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	return runs, err
}

// ListEvents returns the events of a run in the order they happened.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	var events []Event
	err := s.db.SelectContext(ctx, &events,
		`SELECT * FROM events WHERE run_id = ? ORDER BY id`, runID)
	return events, err
}
