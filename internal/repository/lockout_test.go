package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/atinyakov/DocLedger/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGuard(t *testing.T, max int, window time.Duration) (*RedisLoginGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLoginGuard(client, max, window), mr
}

func TestRedisLoginGuard_LocksAfterMaxAttempts(t *testing.T) {
	guard, _ := setupGuard(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, guard.Check(ctx, "alice"))
		require.NoError(t, guard.Fail(ctx, "alice"))
	}
	assert.ErrorIs(t, guard.Check(ctx, "alice"), models.ErrLockedOut)
	assert.NoError(t, guard.Check(ctx, "bob"))
}

func TestRedisLoginGuard_ResetClearsFailures(t *testing.T) {
	guard, mr := setupGuard(t, 2, time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.Fail(ctx, "alice"))
	require.NoError(t, guard.Reset(ctx, "alice"))
	assert.False(t, mr.Exists(lockoutKey("alice")))

	require.NoError(t, guard.Fail(ctx, "alice"))
	assert.NoError(t, guard.Check(ctx, "alice"))
}

func TestRedisLoginGuard_WindowExpires(t *testing.T) {
	guard, mr := setupGuard(t, 1, 15*time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.Fail(ctx, "alice"))
	assert.ErrorIs(t, guard.Check(ctx, "alice"), models.ErrLockedOut)
	assert.Equal(t, 15*time.Minute, mr.TTL(lockoutKey("alice")))

	mr.FastForward(16 * time.Minute)
	assert.NoError(t, guard.Check(ctx, "alice"))
}

func TestRedisLoginGuard_BackendDown(t *testing.T) {
	guard, mr := setupGuard(t, 1, time.Minute)
	mr.Close()

	assert.Error(t, guard.Check(context.Background(), "alice"))
	assert.Error(t, guard.Fail(context.Background(), "alice"))
}
