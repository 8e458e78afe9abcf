package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dirconfig/internal/organizer"
)

// Store manages move history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Run describes one daemon process lifetime.
type Run struct {
	ID         string
	PID        int
	ConfigPath string
	StartedAt  time.Time
	StoppedAt  time.Time
}

// Entry is one recorded move attempt.
type Entry struct {
	ID      int64
	RunID   string
	Source  string
	Entry   string
	From    string
	To      string
	MovedAt time.Time
	Error   string
}

// Failed reports whether the move attempt failed.
func (e Entry) Failed() bool { return e.Error != "" }

// NewRunID returns a fresh identifier for a daemon run.
func NewRunID() string {
	return uuid.NewString()
}

// Open initializes or connects to the journal database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// BeginRun records the start of a daemon run.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, pid, config_path, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.PID, nullableString(run.ConfigPath), formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// EndRun stamps the stop time of a run.
func (s *Store) EndRun(ctx context.Context, runID string, stoppedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stopped_at = ? WHERE run_id = ?`,
		formatTime(stoppedAt), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, pid, config_path, started_at, stopped_at
         FROM runs ORDER BY started_at DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                 Run
			configPath, stopped sql.NullString
			started             string
		)
		if err := rows.Scan(&run.ID, &run.PID, &configPath, &started, &stopped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.ConfigPath = configPath.String
		run.StartedAt = parseTime(started)
		if stopped.Valid {
			run.StoppedAt = parseTime(stopped.String)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Recorder binds the store to a run so the organizer can report moves.
func (s *Store) Recorder(runID string) organizer.Recorder {
	return &runRecorder{store: s, runID: runID}
}

type runRecorder struct {
	store *Store
	runID string
}

func (r *runRecorder) RecordMove(ctx context.Context, move organizer.Move) error {
	return r.store.record(ctx, r.runID, move)
}

func (s *Store) record(ctx context.Context, runID string, move organizer.Move) error {
	movedAt := move.MovedAt
	if movedAt.IsZero() {
		movedAt = time.Now()
	}
	var errText sql.NullString
	if move.Err != nil {
		errText = sql.NullString{String: move.Err.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO moves (run_id, source, entry, from_path, to_path, moved_at, error)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, move.Source, move.Entry, move.From, move.To, formatTime(movedAt), errText,
	)
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}
	return nil
}

// Recent returns the newest move attempts first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source, entry, from_path, to_path, moved_at, error
         FROM moves ORDER BY id DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query moves: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry   Entry
			movedAt string
			errText sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Source, &entry.Entry,
			&entry.From, &entry.To, &movedAt, &errText); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		entry.MovedAt = parseTime(movedAt)
		entry.Error = errText.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const defaultLimit = 20

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
