package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/shared"
)

type heldLock struct {
	token     string
	expiresAt time.Time
}

// InMemoryLocker implements shared.Locker using an in-process map.
// This is suitable for single-instance deployments and testing
type InMemoryLocker struct {
	mu    sync.Mutex
	held  map[string]heldLock
	clock func() time.Time
}

type inMemoryLock struct {
	locker *InMemoryLocker
	key    string
	token  string
}

// NewInMemoryLocker creates a new in-memory locker
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{
		held:  make(map[string]heldLock),
		clock: time.Now,
	}
}

// WithClock overrides the clock used for expiry
func (l *InMemoryLocker) WithClock(now func() time.Time) *InMemoryLocker {
	l.clock = now
	return l
}

// TryAcquire takes the lock unless a live holder exists. An expired holder is replaced.
func (l *InMemoryLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (shared.Lock, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if h, exists := l.held[key]; exists && now.Before(h.expiresAt) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.held[key] = heldLock{token: token, expiresAt: now.Add(ttl)}
	return &inMemoryLock{locker: l, key: key, token: token}, true, nil
}

// Held reports whether key currently has a live holder (for testing/monitoring)
func (l *InMemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, exists := l.held[key]
	return exists && l.clock().Before(h.expiresAt)
}

// Close drops all held locks
func (l *InMemoryLocker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = make(map[string]heldLock)
	return nil
}

// Release implements shared.Lock
func (k *inMemoryLock) Release(_ context.Context) error {
	k.locker.mu.Lock()
	defer k.locker.mu.Unlock()
	if h, exists := k.locker.held[k.key]; exists && h.token == k.token {
		delete(k.locker.held, k.key)
	}
	return nil
}

// Ensure InMemoryLocker implements Locker
var _ shared.Locker = (*InMemoryLocker)(nil)
