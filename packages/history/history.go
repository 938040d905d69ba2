// Package history records run outcomes in a SQLite database so results can
// be compared across runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/apicheck/packages/core/runner"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	suite       TEXT    NOT NULL,
	environment TEXT    NOT NULL DEFAULT '',
	base_url    TEXT    NOT NULL DEFAULT '',
	started_at  TEXT    NOT NULL,
	duration_ms INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	errored     INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	p95_ms      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS runs_suite_started ON runs (suite, started_at);
CREATE TABLE IF NOT EXISTS case_results (
	run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	name        TEXT    NOT NULL,
	outcome     TEXT    NOT NULL,
	status      INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	message     TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);
`

// timeLayout sorts lexically, which ORDER BY started_at relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one stored suite run.
type Run struct {
	ID          int64
	Suite       string
	Environment string
	BaseURL     string
	StartedAt   time.Time
	Duration    time.Duration
	Total       int
	Passed      int
	Failed      int
	Errored     int
	Skipped     int
	P95         time.Duration
	Cases       []Case
}

// OK reports whether no case failed or errored.
func (r Run) OK() bool {
	return r.Failed == 0 && r.Errored == 0
}

// Case is the stored outcome of one test case.
type Case struct {
	Name     string
	Outcome  string
	Status   int
	Duration time.Duration
	Message  string
}

// FromResult converts a runner result into a Run ready to be recorded.
func FromResult(result *runner.RunResult, environment, baseURL string, startedAt time.Time) Run {
	run := Run{
		Suite:       result.Suite,
		Environment: environment,
		BaseURL:     baseURL,
		StartedAt:   startedAt,
		Duration:    result.Duration,
		Total:       result.Total(),
		Passed:      result.Passed,
		Failed:      result.Failed,
		Errored:     result.Errored,
		Skipped:     result.Skipped,
		P95:         result.Latency.P95,
	}
	for _, r := range result.Results {
		c := Case{
			Name:     r.Name,
			Outcome:  string(r.Outcome),
			Duration: r.Duration,
			Message:  r.SkipReason,
		}
		if r.Response != nil {
			c.Status = r.Response.StatusCode
		}
		if r.Error != nil {
			c.Message = r.Error.Error()
		} else if a := r.FirstFailure(); a != nil {
			c.Message = a.Message
		}
		run.Cases = append(run.Cases, c)
	}
	return run
}

// Store is a run history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the history database. The location may be a
// plain path or use the sqlite:// or sqlite: prefixes.
func Open(location string) (*Store, error) {
	path, err := parseLocation(location)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise history database: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path is the database file in use.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores run and returns its id.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (suite, environment, base_url, started_at, duration_ms,
			total, passed, failed, errored, skipped, p95_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Suite, run.Environment, run.BaseURL, run.StartedAt.UTC().Format(timeLayout),
		run.Duration.Milliseconds(), run.Total, run.Passed, run.Failed, run.Errored, run.Skipped,
		run.P95.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO case_results (run_id, position, name, outcome, status, duration_ms, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare case insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range run.Cases {
		if _, err := stmt.ExecContext(ctx, id, i, c.Name, c.Outcome, c.Status, c.Duration.Milliseconds(), c.Message); err != nil {
			return 0, fmt.Errorf("failed to insert case %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

const runColumns = `id, suite, environment, base_url, started_at, duration_ms,
	total, passed, failed, errored, skipped, p95_ms`

// Recent returns up to limit runs, newest first. An empty suite matches
// every suite. Case rows are not loaded.
func (s *Store) Recent(ctx context.Context, suite string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if suite != "" {
		query += ` WHERE suite = ?`
		args = append(args, suite)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Get loads a run together with its cases.
func (s *Store) Get(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d not found", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, outcome, status, duration_ms, message
		FROM case_results WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Case
		var ms int64
		if err := rows.Scan(&c.Name, &c.Outcome, &c.Status, &ms, &c.Message); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		c.Duration = time.Duration(ms) * time.Millisecond
		run.Cases = append(run.Cases, c)
	}
	return &run, rows.Err()
}

// Last returns the newest run of suite, or nil when there is none.
func (s *Store) Last(ctx context.Context, suite string) (*Run, error) {
	runs, err := s.Recent(ctx, suite, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var started string
	var durationMs, p95Ms int64
	err := row.Scan(&run.ID, &run.Suite, &run.Environment, &run.BaseURL, &started, &durationMs,
		&run.Total, &run.Passed, &run.Failed, &run.Errored, &run.Skipped, &p95Ms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt, err = time.Parse(timeLayout, started)
	if err != nil {
		return run, fmt.Errorf("bad started_at %q: %w", started, err)
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond
	run.P95 = time.Duration(p95Ms) * time.Millisecond
	return run, nil
}

// parseLocation accepts sqlite://path, sqlite:path or a bare path.
func parseLocation(location string) (string, error) {
	location = strings.TrimSpace(location)
	switch {
	case strings.HasPrefix(location, "sqlite://"):
		location = strings.TrimPrefix(location, "sqlite://")
	case strings.HasPrefix(location, "sqlite:"):
		location = strings.TrimPrefix(location, "sqlite:")
	case strings.Contains(location, "://"):
		return "", fmt.Errorf("unsupported database scheme in %q", location)
	}
	if location == "" {
		return "", fmt.Errorf("empty history database path")
	}
	return location, nil
}
