package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `id, run_trigger, status, started_at, finished_at, processed_count,
	duplicate_count, rejected_count, errors, rate_limited`

// SQLRunRepository records scan runs. A run is written once when it starts
// and once when it finishes; finished runs are never modified.
type SQLRunRepository struct {
	db *DB
}

var _ RunRepository = (*SQLRunRepository)(nil)

func NewRunRepository(db *DB) *SQLRunRepository {
	return &SQLRunRepository{db: db}
}

func (r *SQLRunRepository) CreateRun(ctx context.Context, run Run) error {
	errorsJSON, err := encodeList(run.Errors)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (id, run_trigger, status, started_at, processed_count, duplicate_count, rejected_count, errors, rate_limited)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Trigger, string(run.Status), run.StartedAt.UTC(), run.ProcessedCount,
		run.DuplicateCount, run.RejectedCount, errorsJSON, run.RateLimited)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun stores the final state of a run that has not been finished yet.
func (r *SQLRunRepository) FinishRun(ctx context.Context, run Run) error {
	if run.FinishedAt == nil {
		return fmt.Errorf("run %s has no finish time", run.ID)
	}

	errorsJSON, err := encodeList(run.Errors)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, processed_count = ?, duplicate_count = ?,
		    rejected_count = ?, errors = ?, rate_limited = ?
		WHERE id = ? AND finished_at IS NULL
	`, string(run.Status), run.FinishedAt.UTC(), run.ProcessedCount, run.DuplicateCount,
		run.RejectedCount, errorsJSON, run.RateLimited, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read finish run result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("unfinished run %s: %w", run.ID, ErrNotFound)
	}

	return nil
}

func (r *SQLRunRepository) GetLastFinishedRun(ctx context.Context) (*Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE finished_at IS NOT NULL
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}

	return run, nil
}

func (r *SQLRunRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

func (r *SQLRunRepository) GetTotalProcessed(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(processed_count), 0) FROM runs`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get total processed: %w", err)
	}
	return total, nil
}

// FailStaleRuns closes runs left in the running state by a process that
// exited mid-scan.
func (r *SQLRunRepository) FailStaleRuns(ctx context.Context, at time.Time) (int, error) {
	errorsJSON, err := encodeList([]RunError{{Kind: "interrupted", Message: "run did not finish before the process stopped"}})
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, errors = ?
		WHERE finished_at IS NULL
	`, string(RunStatusError), at.UTC(), errorsJSON)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale runs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read stale run result: %w", err)
	}

	return int(affected), nil
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		status     string
		finishedAt sql.NullTime
		errorsJSON string
	)
	err := row.Scan(&run.ID, &run.Trigger, &status, &run.StartedAt, &finishedAt, &run.ProcessedCount,
		&run.DuplicateCount, &run.RejectedCount, &errorsJSON, &run.RateLimited)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = timePtr(finishedAt)
	if run.Errors, err = decodeList[RunError](errorsJSON); err != nil {
		return nil, err
	}

	return &run, nil
}
