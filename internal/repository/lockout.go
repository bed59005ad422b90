package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/DocLedger/internal/models"
	"github.com/redis/go-redis/v9"
)

const lockoutKeyPrefix = "docledger:login:fail:"

// RedisLoginGuard counts failed logins per username in Redis. A username is
// locked once it reaches maxAttempts failures; the counter expires window
// after the most recent failure.
type RedisLoginGuard struct {
	client      redis.Cmdable
	maxAttempts int64
	window      time.Duration
}

// NewRedisLoginGuard creates a guard on client.
func NewRedisLoginGuard(client redis.Cmdable, maxAttempts int, window time.Duration) *RedisLoginGuard {
	return &RedisLoginGuard{client: client, maxAttempts: int64(maxAttempts), window: window}
}

func lockoutKey(username string) string {
	return lockoutKeyPrefix + username
}

// Check returns models.ErrLockedOut while username has too many failures.
func (g *RedisLoginGuard) Check(ctx context.Context, username string) error {
	n, err := g.client.Get(ctx, lockoutKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read login failures: %w", err)
	}
	if n >= g.maxAttempts {
		return models.ErrLockedOut
	}
	return nil
}

// Fail records one failed attempt and refreshes the window.
func (g *RedisLoginGuard) Fail(ctx context.Context, username string) error {
	key := lockoutKey(username)
	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, g.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

// Reset forgets the failures of username.
func (g *RedisLoginGuard) Reset(ctx context.Context, username string) error {
	if err := g.client.Del(ctx, lockoutKey(username)).Err(); err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}
