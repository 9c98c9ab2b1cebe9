package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// releaseScript deletes the key only while it still holds the caller's token,
// so an expired and re-acquired lock is never released by its previous holder
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements shared.Locker using SET NX with a TTL.
// It is suitable for deployments where several instances reconcile the same deals.
type RedisLocker struct {
	client    *redis.Client
	keyPrefix string
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

// NewRedisLocker connects to Redis and creates a locker
func NewRedisLocker(cfg RedisConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisLockerWithClient(client, ""), nil
}

// NewRedisLockerWithClient creates a locker with an existing Redis client
func NewRedisLockerWithClient(client *redis.Client, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &RedisLocker{client: client, keyPrefix: keyPrefix}
}

// TryAcquire takes the lock if no one holds it. It never blocks waiting for a holder.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (shared.Lock, bool, error) {
	token := uuid.NewString()
	fullKey := l.keyPrefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLock{client: l.client, key: fullKey, token: token}, true, nil
}

// Close closes the Redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// Release implements shared.Lock
func (k *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, k.client, []string{k.key}, k.token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", k.key, err)
	}
	return nil
}

// Ensure RedisLocker implements Locker
var _ shared.Locker = (*RedisLocker)(nil)
