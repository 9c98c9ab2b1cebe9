package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/infrastructure/config"
	"github.com/itdd/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// JobStatus represents the status of a reconciliation job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is one queued reconciliation pass for a scope
type Job struct {
	ID          uuid.UUID
	Key         resolution.ScopeKey
	Status      JobStatus
	Error       string
	Attempts    int
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewJob creates a pending job for key
func NewJob(key resolution.ScopeKey) *Job {
	return &Job{ID: uuid.New(), Key: key, Status: JobStatusPending}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Attempts++
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// RunnerStats is a point-in-time view of runner counters
type RunnerStats struct {
	Submitted int64
	Coalesced int64
	Completed int64
	Failed    int64
	Retried   int64
}

// RunnerOption configures a ReconcileRunner
type RunnerOption func(*ReconcileRunner)

// WithQueueDepthGauge reports the queue length after every enqueue and dequeue
func WithQueueDepthGauge(gauge func(depth int)) RunnerOption {
	return func(r *ReconcileRunner) {
		r.depthGauge = gauge
	}
}

// WithBusyRetry sets how often and how long to wait before re-queuing a job whose
// scope is locked by another pass.
func WithBusyRetry(attempts int, delay time.Duration) RunnerOption {
	return func(r *ReconcileRunner) {
		r.busyAttempts = attempts
		r.busyDelay = delay
	}
}

// ReconcileRunner runs reconciliation passes on a bounded worker pool. At most one
// job per scope waits in the queue; triggers for a scope that is already queued
// are folded into the queued job.
type ReconcileRunner struct {
	cfg        config.SchedulerConfig
	reconciler appresolution.Reconciler
	logger     *zap.Logger
	depthGauge func(int)

	busyAttempts int
	busyDelay    time.Duration

	jobs    chan *Job
	pending map[string]struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	submitted atomic.Int64
	coalesced atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

var _ appresolution.ReconciliationTrigger = (*ReconcileRunner)(nil)

// NewReconcileRunner creates a runner. Zero worker or queue settings fall back to 1.
func NewReconcileRunner(cfg config.SchedulerConfig, reconciler appresolution.Reconciler, logger *zap.Logger, opts ...RunnerOption) *ReconcileRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	r := &ReconcileRunner{
		cfg:          cfg,
		reconciler:   reconciler,
		logger:       logger.Named("reconcile_runner"),
		depthGauge:   func(int) {},
		busyAttempts: 3,
		busyDelay:    5 * time.Second,
		jobs:         make(chan *Job, cfg.QueueSize),
		pending:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start starts the worker pool
func (r *ReconcileRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(r.ctx, i)
	}

	r.logger.Info("Reconcile runner started",
		zap.Int("workers", r.cfg.Workers),
		zap.Int("queue_size", r.cfg.QueueSize),
		zap.Duration("job_timeout", r.cfg.JobTimeout),
	)
	return nil
}

// Stop cancels running passes and waits for workers to exit. Queued jobs are dropped.
func (r *ReconcileRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	dropped := len(r.jobs)
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Reconcile runner stopped", zap.Int("dropped_jobs", dropped))
		return nil
	case <-ctx.Done():
		r.logger.Warn("Reconcile runner stop timed out")
		return ctx.Err()
	}
}

// Trigger implements appresolution.ReconciliationTrigger. It never blocks on a pass.
func (r *ReconcileRunner) Trigger(_ context.Context, key resolution.ScopeKey) error {
	if !key.Scope.IsValid() {
		return shared.NewValidationError("ownership_scope", "must be target or acquirer")
	}
	if key.DealID == uuid.Nil {
		return shared.NewValidationError("deal_scope", "is required")
	}
	return r.submit(NewJob(key))
}

// Stats returns the runner counters
func (r *ReconcileRunner) Stats() RunnerStats {
	return RunnerStats{
		Submitted: r.submitted.Load(),
		Coalesced: r.coalesced.Load(),
		Completed: r.completed.Load(),
		Failed:    r.failed.Load(),
		Retried:   r.retried.Load(),
	}
}

// QueueDepth returns the number of queued jobs
func (r *ReconcileRunner) QueueDepth() int {
	return len(r.jobs)
}

func (r *ReconcileRunner) submit(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return ErrSchedulerNotRunning
	}
	id := job.Key.String()
	if _, queued := r.pending[id]; queued {
		r.coalesced.Add(1)
		r.logger.Debug("Reconciliation already queued", zap.String("scope", id))
		return nil
	}

	select {
	case r.jobs <- job:
		r.pending[id] = struct{}{}
		r.submitted.Add(1)
		r.depthGauge(len(r.jobs))
		r.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("scope", id),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// take releases the coalescing slot so triggers arriving mid-pass queue a fresh pass
func (r *ReconcileRunner) take(job *Job) {
	r.mu.Lock()
	delete(r.pending, job.Key.String())
	r.depthGauge(len(r.jobs))
	r.mu.Unlock()
}

func (r *ReconcileRunner) worker(ctx context.Context, workerID int) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.jobs:
			r.take(job)
			r.process(ctx, job, workerID)
		}
	}
}

func (r *ReconcileRunner) process(ctx context.Context, job *Job, workerID int) {
	job.Start()
	log := r.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("scope", job.Key.String()),
		zap.Int("attempt", job.Attempts),
	)

	jobCtx := ctx
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}
	jobCtx, span := telemetry.StartSpan(jobCtx, "reconcile.job",
		telemetry.AttrDealID.String(job.Key.DealID.String()),
		telemetry.AttrOwnershipScope.String(string(job.Key.Scope)),
	)

	report, err := r.reconciler.Reconcile(jobCtx, job.Key)
	telemetry.EndSpan(span, err)

	switch {
	case err == nil:
		job.Complete()
		r.completed.Add(1)
		log.Info("Reconciliation job completed",
			zap.Int("rounds", report.Rounds),
			zap.Int("merges", len(report.Merges)),
			zap.Int("conflicts", len(report.Conflicts)),
			zap.Duration("duration", report.Duration),
		)
	case errors.Is(err, shared.ErrReconciliationInProgress) && job.Attempts < r.busyAttempts:
		job.Status = JobStatusPending
		r.retried.Add(1)
		log.Info("Scope busy, retrying later", zap.Duration("delay", r.busyDelay))
		r.retryLater(ctx, job)
	default:
		job.Fail(err.Error())
		r.failed.Add(1)
		log.Error("Reconciliation job failed", zap.Error(err))
	}
}

func (r *ReconcileRunner) retryLater(ctx context.Context, job *Job) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(r.busyDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := r.submit(job); err != nil && !errors.Is(err, ErrSchedulerNotRunning) {
			r.failed.Add(1)
			r.logger.Warn("Failed to re-queue job",
				zap.String("job_id", job.ID.String()),
				zap.String("scope", job.Key.String()),
				zap.Error(err),
			)
		}
	}()
}
