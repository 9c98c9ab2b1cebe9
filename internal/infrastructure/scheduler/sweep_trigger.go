package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/resolution"
	"go.uber.org/zap"
)

// ScopeProvider lists the scopes that currently hold active records
type ScopeProvider interface {
	ActiveScopes(ctx context.Context) ([]resolution.ScopeKey, error)
}

// SweepTrigger periodically queues a reconciliation pass for every active scope,
// so pairs left behind by a failed or skipped post-batch pass converge eventually.
type SweepTrigger struct {
	interval time.Duration
	trigger  appresolution.ReconciliationTrigger
	scopes   ScopeProvider
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSweepTrigger creates a sweep. A non-positive interval makes Start a no-op.
func NewSweepTrigger(interval time.Duration, trigger appresolution.ReconciliationTrigger, scopes ScopeProvider, logger *zap.Logger) *SweepTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepTrigger{
		interval: interval,
		trigger:  trigger,
		scopes:   scopes,
		logger:   logger.Named("reconcile_sweep"),
	}
}

// Start starts the sweep loop
func (s *SweepTrigger) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("Reconciliation sweep disabled")
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Reconciliation sweep started", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the sweep loop
func (s *SweepTrigger) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reconciliation sweep stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SweepTrigger) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce queues every active scope and returns how many were accepted. A full
// queue stops the sweep early; the next tick picks up the rest.
func (s *SweepTrigger) SweepOnce(ctx context.Context) (int, error) {
	keys, err := s.scopes.ActiveScopes(ctx)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, key := range keys {
		err := s.trigger.Trigger(ctx, key)
		if errors.Is(err, ErrJobQueueFull) {
			s.logger.Warn("Reconcile queue full, sweep cut short",
				zap.Int("queued", queued),
				zap.Int("scopes", len(keys)),
			)
			break
		}
		if err != nil {
			s.logger.Warn("Failed to queue scope",
				zap.String("scope", key.String()),
				zap.Error(err),
			)
			continue
		}
		queued++
	}

	s.logger.Debug("Reconciliation sweep queued scopes",
		zap.Int("queued", queued),
		zap.Int("scopes", len(keys)),
	)
	return queued, nil
}
