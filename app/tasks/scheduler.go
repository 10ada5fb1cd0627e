package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/rss-radar/app/radar"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	taskTimeout = 30 * time.Minute
	queueSize   = 1
)

// Scheduler triggers periodic scans through cron and runs queued tasks on a
// single worker.
type Scheduler struct {
	scanner   ScanRunner
	cron      *cron.Cron
	periodic  bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface

	mu       sync.Mutex
	entryID  cron.EntryID
	interval int
}

// NewScheduler creates a scheduler scanning every intervalMinutes. A
// non-positive interval disables periodic scans; queued tasks still run.
func NewScheduler(scanner ScanRunner, intervalMinutes int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{}

	return &Scheduler{
		scanner:   scanner,
		cron:      cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)), cron.WithLogger(logger)),
		periodic:  intervalMinutes > 0,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, queueSize),
		interval:  intervalMinutes,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	if s.periodic {
		if err := s.Reschedule(s.interval); err != nil {
			slog.Error("Failed to schedule scans", "error", err)
		}
	}

	s.cron.Start()
	slog.Info("Scheduler started", "periodic", s.periodic, "interval_minutes", s.interval)
}

func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Reschedule replaces the periodic scan entry with one firing every
// intervalMinutes.
func (s *Scheduler) Reschedule(intervalMinutes int) error {
	if !s.periodic {
		return nil
	}
	if intervalMinutes <= 0 {
		return fmt.Errorf("invalid scan interval: %d minutes", intervalMinutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 && intervalMinutes == s.interval {
		return nil
	}

	schedule := fmt.Sprintf("@every %dm", intervalMinutes)
	entryID, err := s.cron.AddFunc(schedule, s.runScheduledScan)
	if err != nil {
		return fmt.Errorf("failed to schedule scans with %q: %w", schedule, err)
	}

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = entryID
	s.interval = intervalMinutes

	slog.Info("Scan schedule updated", "interval_minutes", intervalMinutes)
	return nil
}

// NextScanAt returns the time of the next periodic scan, zero when none is scheduled.
func (s *Scheduler) NextScanAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) EnqueueScan(trigger string) error {
	return s.EnqueueTask(NewScanTask(trigger, s.scanner))
}

func (s *Scheduler) runScheduledScan() {
	s.executeTask(NewScanTask(radar.TriggerSchedule, s.scanner))
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := min(time.Duration(1<<uint(task.GetRetryCount()-1))*time.Second, 30*time.Second)

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	go func() {
		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "error", retryErr)
			}
		}
	}()
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
