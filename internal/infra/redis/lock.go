package redis

import (
	"context"
	"fmt"
	"time"
)

// Locker implements storage.Locker with SET NX and a TTL, so every process
// sharing the Redis instance sees the same lock.
type Locker struct {
	client *Client
}

// NewLocker creates a Redis-backed advisory lock.
func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// Acquire attempts to take the lock for key.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.rdb.SetNX(ctx, l.client.lockKey(key), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Release removes the lock for key.
func (l *Locker) Release(ctx context.Context, key string) error {
	if err := l.client.rdb.Del(ctx, l.client.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}
