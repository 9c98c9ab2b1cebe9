// Package app wires the resolution services onto their infrastructure. The HTTP
// server and the operator CLI build the same graph from one configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/infrastructure/cache"
	"github.com/itdd/backend/internal/infrastructure/config"
	"github.com/itdd/backend/internal/infrastructure/event"
	"github.com/itdd/backend/internal/infrastructure/logger"
	"github.com/itdd/backend/internal/infrastructure/persistence"
	"github.com/itdd/backend/internal/infrastructure/scheduler"
	"github.com/itdd/backend/internal/infrastructure/storage"
	"github.com/itdd/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Mode selects how reconciliation is triggered after a batch
type Mode int

const (
	// ModeServer queues passes on the background runner
	ModeServer Mode = iota
	// ModeInline runs passes in the caller's goroutine
	ModeInline
)

// App is the wired object graph
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *persistence.Database
	Metrics *telemetry.ResolutionMetrics
	Tracer  *telemetry.TracerProvider

	Records *persistence.GormInventoryRecordRepository
	Reviews *persistence.GormMergeReviewRepository

	Ingestion      *appresolution.IngestionService
	Query          *appresolution.QueryService
	Review         *appresolution.ReviewService
	Reconciliation *appresolution.ReconciliationService
	Export         *appresolution.ExportService

	// Trigger queues passes; it is the runner in ModeServer
	Trigger appresolution.ReconciliationTrigger
	Runner  *scheduler.ReconcileRunner
	Sweep   *scheduler.SweepTrigger

	bus    *event.InMemoryEventBus
	locker shared.Locker
}

// New opens storage and builds the services. Background workers are not started.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, mode Mode) (*App, error) {
	a := &App{Config: cfg, Logger: log, Metrics: telemetry.NewResolutionMetrics()}

	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, err
	}
	a.Tracer = tp

	gormOpts := []logger.GormLoggerOption{logger.WithFullSQL(cfg.Telemetry.DBLogFullSQL)}
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		gormOpts = append(gormOpts, logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), gormOpts...)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	a.DB = db
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
	}
	if err := telemetry.RegisterDBTracing(db.DB, cfg.Telemetry, log); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to register database tracing: %w", err)
	}

	locker, err := cache.NewLockerFactory(cfg.Redis, cache.WithLogger(log)).CreateLocker()
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.locker = locker

	a.bus = event.NewInMemoryEventBus(log)
	a.bus.Subscribe(event.NewAuditHandler(event.NewResolutionSerializer(), log, a.Metrics))

	a.Records = persistence.NewGormInventoryRecordRepository(db.DB)
	a.Reviews = persistence.NewGormMergeReviewRepository(db.DB)

	retry := retryPolicy(cfg.Resolution)
	a.Ingestion = appresolution.NewIngestionService(a.Records, appresolution.IngestionConfig{
		Retry:               retry,
		ReconcileAfterBatch: cfg.Resolution.ReconcileAfterBatch,
	}, log)
	a.Query = appresolution.NewQueryService(a.Records, a.Reviews)
	a.Review = appresolution.NewReviewService(a.Records, a.Reviews, retry, log)
	a.Reconciliation = appresolution.NewReconciliationService(a.Records, a.Reviews, locker, appresolution.ReconciliationConfig{
		Policy:  matchPolicy(cfg.Resolution),
		LockTTL: cfg.Resolution.ScopeLockTTL,
		Retry:   retry,
	}, log)

	a.Ingestion.SetEventPublisher(a.bus)
	a.Ingestion.SetMetrics(a.Metrics)
	a.Review.SetEventPublisher(a.bus)
	a.Review.SetMetrics(a.Metrics)
	a.Reconciliation.SetEventPublisher(a.bus)
	a.Reconciliation.SetMetrics(a.Metrics)

	if mode == ModeServer && cfg.Scheduler.Enabled {
		a.Runner = scheduler.NewReconcileRunner(cfg.Scheduler, a.Reconciliation, log,
			scheduler.WithQueueDepthGauge(a.Metrics.SetQueueDepth),
		)
		a.Trigger = a.Runner
		a.Sweep = scheduler.NewSweepTrigger(cfg.Scheduler.SweepInterval, a.Runner, a.Records, log)
	} else if mode == ModeServer {
		a.Trigger = appresolution.NewDeferredTrigger(log)
	} else {
		a.Trigger = appresolution.NewDirectTrigger(a.Reconciliation, cfg.Scheduler.JobTimeout, log)
	}
	a.Ingestion.SetTrigger(a.Trigger)

	store, err := exportStore(ctx, cfg.Storage, log)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Export = appresolution.NewExportService(a.Query, store, log)

	return a, nil
}

// exportStore returns nil when storage is disabled, which makes publishing fail
// with EXPORT_STORAGE_DISABLED while rendering keeps working.
func exportStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (appresolution.ExportStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	store, err := storage.NewS3ExportStore(ctx, &cfg, storage.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create export store: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Warn("Export bucket check failed", zap.String("bucket", store.Bucket()), zap.Error(err))
	}
	return store, nil
}

func retryPolicy(cfg config.ResolutionConfig) appresolution.RetryPolicy {
	return appresolution.RetryPolicy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
		Timeout:   cfg.OperationTimeout,
	}
}

func matchPolicy(cfg config.ResolutionConfig) resolution.MatchPolicy {
	policy := resolution.DefaultMatchPolicy()
	if cfg.SimilarityThreshold > 0 {
		policy.Threshold = cfg.SimilarityThreshold
	}
	if cfg.ReviewMargin > 0 {
		policy.ReviewMargin = cfg.ReviewMargin
	}
	if cfg.NameWeight > 0 || cfg.VendorWeight > 0 {
		policy.NameWeight = cfg.NameWeight
		policy.VendorWeight = cfg.VendorWeight
	}
	if cfg.VendorDisagreement > 0 {
		policy.VendorDisagreement = cfg.VendorDisagreement
	}
	return policy
}

// Start starts the event bus and, in server mode, the runner and sweep
func (a *App) Start(ctx context.Context) error {
	if err := a.bus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	if a.Runner != nil {
		if err := a.Runner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start reconcile runner: %w", err)
		}
	}
	if a.Sweep != nil {
		if err := a.Sweep.Start(ctx); err != nil {
			return fmt.Errorf("failed to start reconcile sweep: %w", err)
		}
	}
	return nil
}

// QueueDepth reports queued reconciliation jobs; zero without a runner
func (a *App) QueueDepth() int {
	if a.Runner == nil {
		return 0
	}
	return a.Runner.QueueDepth()
}

// Close stops background work and releases storage. Safe on a partly built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Sweep != nil {
		errs = append(errs, a.Sweep.Stop(ctx))
	}
	if a.Runner != nil {
		errs = append(errs, a.Runner.Stop(ctx))
	}
	if a.bus != nil && a.bus.Running() {
		errs = append(errs, a.bus.Stop(ctx))
	}
	if a.locker != nil {
		errs = append(errs, a.locker.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Tracer != nil {
		errs = append(errs, a.Tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
