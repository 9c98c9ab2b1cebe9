package resolution

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/itdd/backend/internal/domain/shared"
)

// RetryPolicy bounds how often one storage operation is attempted
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Timeout bounds each attempt; zero means the caller's deadline only
	Timeout time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  2 * time.Second,
		Timeout:   5 * time.Second,
	}
}

// BackOff builds the delay schedule for ctx: doubling from BaseDelay, capped
// at MaxDelay, without jitter, stopping after Attempts-1 retries.
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.MaxInterval = max(p.MaxDelay, p.BaseDelay)
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.attempts()-1)), ctx)
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// retryable reports whether a failed attempt may succeed if repeated. A per-attempt
// timeout is retryable; cancellation of the caller's context is not.
func retryable(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	return shared.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

// run executes fn until it succeeds, fails permanently, or attempts run out.
// It returns the number of attempts made. A nil timer waits on the wall clock.
func (p RetryPolicy) run(ctx context.Context, timer backoff.Timer, onRetry func(attempt int, err error), fn func(ctx context.Context) error) (int, error) {
	made := 0
	var last error
	op := func() error {
		made++
		last = p.attempt(ctx, fn)
		if last != nil && !retryable(ctx, last) {
			return backoff.Permanent(last)
		}
		return last
	}
	notify := func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(made, err)
		}
	}
	if err := backoff.RetryNotifyWithTimer(op, p.BackOff(ctx), notify, timer); err != nil {
		// cancellation while waiting reports the operation's own failure
		if last != nil {
			return made, last
		}
		return made, err
	}
	return made, nil
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(attemptCtx)
}
