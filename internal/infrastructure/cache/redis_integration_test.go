//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRedisLocker(t *testing.T) *RedisLocker {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	locker, err := NewRedisLocker(RedisConfig{Host: host, Port: port.Int()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = locker.Close() })
	return locker
}

func TestRedisLocker_ScopeExclusivity(t *testing.T) {
	ctx := context.Background()
	locker := newRedisLocker(t)

	lock, ok, err := locker.TryAcquire(ctx, "reconcile:target:deal-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryAcquire(ctx, "reconcile:target:deal-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = locker.TryAcquire(ctx, "reconcile:acquirer:deal-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "scopes lock independently")

	require.NoError(t, lock.Release(ctx))
	_, ok, err = locker.TryAcquire(ctx, "reconcile:target:deal-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	locker := newRedisLocker(t)

	stale, ok, err := locker.TryAcquire(ctx, "reconcile:target:deal-2", 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	var fresh bool
	require.Eventually(t, func() bool {
		_, fresh, err = locker.TryAcquire(ctx, "reconcile:target:deal-2", time.Minute)
		return err == nil && fresh
	}, 5*time.Second, 50*time.Millisecond)

	// the expired holder must not delete the new token
	require.NoError(t, stale.Release(ctx))
	_, ok, err = locker.TryAcquire(ctx, "reconcile:target:deal-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
