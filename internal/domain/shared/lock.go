package shared

import (
	"context"
	"time"
)

// Lock is a held exclusive lock.
type Lock interface {
	// Release frees the lock if this holder still owns it.
	Release(ctx context.Context) error
}

// Locker grants named exclusive locks with a TTL so a crashed holder cannot
// block a key forever.
type Locker interface {
	// TryAcquire returns ok=false without error when the key is already held.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lock Lock, ok bool, err error)
	Close() error
}
