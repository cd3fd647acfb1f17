package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDistributedLock_AcquireAndRelease(t *testing.T) {
	client := testClient(t)
	lock := NewRedisDistributedLock(client, "snapshot:refresh-lock")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())

	// Unlock without holding is a no-op.
	require.NoError(t, lock.Unlock(ctx))
}

func TestDistributedLock_MutualExclusion(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	lock1 := NewRedisDistributedLock(client, "cleanup:timelog-retention-lock")
	lock2 := NewRedisDistributedLock(client, "cleanup:timelog-retention-lock")

	acquired, err := lock1.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "lock is held by the first instance")

	require.NoError(t, lock1.Unlock(ctx))

	acquired, err = lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "lock is free after the first instance released it")
	require.NoError(t, lock2.Unlock(ctx))
}

func TestDistributedLock_UnlockOnlyReleasesOwnLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	lock1 := NewRedisDistributedLock(client, "snapshot:refresh-lock")
	lock2 := NewRedisDistributedLock(client, "snapshot:refresh-lock")

	acquired, err := lock1.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// Simulate lock1's key expiring and lock2 taking over.
	mr.FastForward(lockTTL + time.Second)
	acquired, err = lock2.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// lock1 unlocking must not delete lock2's key.
	require.NoError(t, lock1.Unlock(ctx))
	val, err := client.Get(ctx, "snapshot:refresh-lock").Result()
	require.NoError(t, err)
	assert.Equal(t, lock2.lockValue, val)

	require.NoError(t, lock2.Unlock(ctx))
}

func TestDistributedLock_ReacquireAfterExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	lock1 := NewRedisDistributedLock(client, "snapshot:refresh-lock")
	lock2 := NewRedisDistributedLock(client, "snapshot:refresh-lock")

	acquired, err := lock1.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(lockTTL + time.Second)

	acquired, err = lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "lock is available after its TTL expired")
	require.NoError(t, lock2.Unlock(ctx))
}

func TestDistributedLock_NilClientSingleInstance(t *testing.T) {
	lock := NewRedisDistributedLock(nil, "snapshot:refresh-lock")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
}

func TestDistributedLock_ExactlyOneWinner(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	lock1 := NewRedisDistributedLock(client, "boundary-lock")
	lock2 := NewRedisDistributedLock(client, "boundary-lock")

	acquired1, err1 := lock1.TryLock(ctx)
	acquired2, err2 := lock2.TryLock(ctx)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.NotEqual(t, acquired1, acquired2, "exactly one instance wins")

	if acquired1 {
		_ = lock1.Unlock(ctx)
	}
	if acquired2 {
		_ = lock2.Unlock(ctx)
	}
}
