package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a preparation run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ErrRunNotFound reports an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of the preparation pipeline.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Status     RunStatus `json:"status"`
	Shards     int       `json:"shards"`
	Sessions   int       `json:"sessions"`
	Written    int       `json:"written"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// RunTotals are the counters recorded when a run finishes.
type RunTotals struct {
	Sessions int
	Written  int
	Skipped  int
	Failed   int
}

// BeginRun records a new running run.
func (s *Store) BeginRun(ctx context.Context, id string, shards int) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, started_at, status, shards) VALUES (?, ?, ?, ?)`,
		id, formatTime(time.Now()), RunRunning, shards,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters. A non-nil runErr marks the run failed.
func (s *Store) FinishRun(ctx context.Context, id string, totals RunTotals, runErr error) error {
	status := RunCompleted
	message := ""
	if runErr != nil {
		status = RunFailed
		message = runErr.Error()
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, sessions = ?, written = ?, skipped = ?, failed = ?, error = ?
         WHERE id = ?`,
		formatTime(time.Now()), status, totals.Sessions, totals.Written, totals.Skipped, totals.Failed,
		nullableString(message), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordSkip stores why an item of a run was not written.
func (s *Store) RecordSkip(ctx context.Context, runID, item, reason, detail string) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO skips (run_id, item, reason, detail, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		runID, item, reason, nullableString(detail), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert skip: %w", err)
	}
	return nil
}

// SkipReasons counts a run's skipped items by reason.
func (s *Store) SkipReasons(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT reason, COUNT(1) FROM skips WHERE run_id = ? GROUP BY reason`, runID)
	if err != nil {
		return nil, fmt.Errorf("query skips: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			reason string
			count  int
		)
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, err
		}
		out[reason] = count
	}
	return out, rows.Err()
}

const runColumns = "id, started_at, finished_at, status, shards, sessions, written, skipped, failed, error"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		status      string
		startedRaw  string
		finishedRaw sql.NullString
		errMessage  sql.NullString
	)
	if err := scanner.Scan(&run.ID, &startedRaw, &finishedRaw, &status,
		&run.Shards, &run.Sessions, &run.Written, &run.Skipped, &run.Failed, &errMessage); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.Error = errMessage.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finished, err := parseTimeString(finishedRaw.String); err == nil {
		run.FinishedAt = finished
	}
	return &run, nil
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
