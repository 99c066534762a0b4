package utils

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/cellsync/fiscal_backend/config"
)

var ErrLockNotReady = errors.New("service not ready (redis lock not initialized)")

// RedisLocker hands out short-lived redislock locks. A nil client makes every Lock fail
// with ErrLockNotReady, which callers treat as "proceed without the lock".
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
}

func NewRedisLocker(client *redislock.Client) *RedisLocker {
	return &RedisLocker{client: client, ttl: 30 * time.Second, retries: 50}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotReady
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), l.retries),
	})
	if err != nil {
		return nil, err
	}
	return func() {
		// the caller's ctx may already be cancelled once the import returns
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(config.GetLogger(), "utils", "RedisLocker.Release", "release lock", key, err)
		}
	}, nil
}
