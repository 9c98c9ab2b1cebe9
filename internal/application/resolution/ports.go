package resolution

import (
	"context"
	"time"

	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Metrics receives resolution counters. Implementations must be safe for concurrent use.
type Metrics interface {
	IngestedItem(kind resolution.ExtractionKind, outcome ItemOutcome)
	RetriedOperation(op string)
	ReconciliationFinished(report *ReconciliationReport)
	ReviewResolved(decision resolution.ReviewDecision)
}

// NoopMetrics discards every measurement
type NoopMetrics struct{}

func (NoopMetrics) IngestedItem(resolution.ExtractionKind, ItemOutcome) {}
func (NoopMetrics) RetriedOperation(string)                             {}
func (NoopMetrics) ReconciliationFinished(*ReconciliationReport)        {}
func (NoopMetrics) ReviewResolved(resolution.ReviewDecision)            {}

// ReconciliationTrigger requests a reconciliation pass for one scope after ingestion
type ReconciliationTrigger interface {
	Trigger(ctx context.Context, key resolution.ScopeKey) error
}

// Reconciler runs a reconciliation pass
type Reconciler interface {
	Reconcile(ctx context.Context, key resolution.ScopeKey) (*ReconciliationReport, error)
}

// DirectTrigger runs reconciliation synchronously in the caller's goroutine
type DirectTrigger struct {
	reconciler Reconciler
	logger     *zap.Logger
	timeout    time.Duration
}

// NewDirectTrigger creates a trigger that runs passes inline
func NewDirectTrigger(reconciler Reconciler, timeout time.Duration, logger *zap.Logger) *DirectTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectTrigger{reconciler: reconciler, logger: logger, timeout: timeout}
}

// Trigger implements ReconciliationTrigger
func (t *DirectTrigger) Trigger(ctx context.Context, key resolution.ScopeKey) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	report, err := t.reconciler.Reconcile(ctx, key)
	if err != nil {
		return err
	}
	t.logger.Info("Reconciliation finished",
		zap.String("scope", key.String()),
		zap.Int("merges", len(report.Merges)),
		zap.Int("conflicts", len(report.Conflicts)))
	return nil
}

// DeferredTrigger records requested passes without running them. Servers
// started with the scheduler disabled use it so ingestion and the reconcile
// endpoint never run a pass on the request goroutine.
type DeferredTrigger struct {
	logger *zap.Logger
}

// NewDeferredTrigger creates a trigger that only logs the requested scope
func NewDeferredTrigger(logger *zap.Logger) *DeferredTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeferredTrigger{logger: logger}
}

// Trigger implements ReconciliationTrigger. It always returns
// shared.ErrReconciliationDeferred.
func (t *DeferredTrigger) Trigger(_ context.Context, key resolution.ScopeKey) error {
	t.logger.Info("Reconciliation deferred", zap.String("scope", key.String()))
	return shared.ErrReconciliationDeferred
}

// publishPending drains the aggregate's buffered events into publisher.
// Delivery failures are logged and never fail the operation.
func publishPending(ctx context.Context, publisher shared.EventPublisher, agg shared.AggregateRoot, logger *zap.Logger) {
	events := agg.PullDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := publisher.Publish(ctx, events...); err != nil {
		logger.Warn("Failed to publish domain events",
			zap.String("aggregate_id", events[0].AggregateID()),
			zap.Int("events", len(events)),
			zap.Error(err))
	}
}
