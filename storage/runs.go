package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Run is one collection run.
type Run struct {
	ID             string
	Subreddit      string
	RequestedCount int
	CacheHit       bool
	Threads        int
	Entries        int
	Calls          int
	Outages        int
	Skipped        int
	Elapsed        time.Duration
	Status         string
	Error          string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RecordRun inserts a run or updates an existing one with the same ID. A run
// without an ID is given a fresh one.
func (db *DB) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}

	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}

	query := `
	INSERT INTO runs (id, subreddit, requested_count, cache_hit, threads, entries,
		calls, outages, skipped, elapsed_ms, status, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		cache_hit = excluded.cache_hit,
		threads = excluded.threads,
		entries = excluded.entries,
		calls = excluded.calls,
		outages = excluded.outages,
		skipped = excluded.skipped,
		elapsed_ms = excluded.elapsed_ms,
		status = excluded.status,
		error = excluded.error,
		finished_at = excluded.finished_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.Subreddit,
		run.RequestedCount,
		run.CacheHit,
		run.Threads,
		run.Entries,
		run.Calls,
		run.Outages,
		run.Skipped,
		run.Elapsed.Milliseconds(),
		run.Status,
		errText,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, subreddit, requested_count, cache_hit, threads, entries,
	calls, outages, skipped, elapsed_ms, status, error, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var elapsedMs int64
	var errText sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.Subreddit,
		&run.RequestedCount,
		&run.CacheHit,
		&run.Threads,
		&run.Entries,
		&run.Calls,
		&run.Outages,
		&run.Skipped,
		&elapsedMs,
		&run.Status,
		&errText,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	run.Error = errText.String
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
