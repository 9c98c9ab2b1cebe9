package scheduler

import "github.com/itdd/backend/internal/domain/shared"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped runner
	ErrSchedulerNotRunning = shared.NewDomainError("SCHEDULER_NOT_RUNNING", "scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = shared.NewDomainError("RECONCILE_QUEUE_FULL", "job queue is full")
)
