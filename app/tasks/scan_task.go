package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/radar"
)

type ScanRunner interface {
	Run(ctx context.Context, trigger string) (database.Run, error)
}

// queuedScanRetries is the retry budget of startup and manual scans. Scheduled
// scans are not retried; the next tick is their retry.
const queuedScanRetries = 2

// ScanTask runs one radar scan. A scan that finds another one in progress is
// skipped, not retried.
type ScanTask struct {
	Task
	Trigger string
	scanner ScanRunner
}

func NewScanTask(trigger string, scanner ScanRunner) *ScanTask {
	task := &ScanTask{
		Task:    NewTask(TaskTypeScan),
		Trigger: trigger,
		scanner: scanner,
	}
	task.MaxRetries = queuedScanRetries
	if trigger == radar.TriggerSchedule {
		task.MaxRetries = 0
	}
	return task
}

func (t *ScanTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	run, err := t.scanner.Run(ctx, t.Trigger)
	if errors.Is(err, radar.ErrScanInProgress) {
		slog.Info("Scan already in progress, skipping", "trigger", t.Trigger)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run scan: %w", err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"trigger", t.Trigger,
		"duration", t.GetDuration(),
		"run_id", run.ID,
		"status", run.Status,
		"processed", run.ProcessedCount)

	return nil
}
