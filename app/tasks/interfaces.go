package tasks

import "time"

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API to run scans in the background.
// Example usage:
//
//	scheduler := NewScheduler(scanner, settings.ScanIntervalMinutes)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewScanTask(radar.TriggerManual, scanner))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueScan(trigger string) error
	Reschedule(intervalMinutes int) error
	NextScanAt() time.Time
}
