package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// OrderLock implements ports.OrderLocker using Redis SET NX. It keeps a
// bulk sync from hammering one order; it is not the correctness mechanism,
// the database row lock is.
type OrderLock struct {
	client *goredis.Client
	prefix string
}

// NewOrderLock creates a new Redis-backed order lock.
func NewOrderLock(client *goredis.Client) *OrderLock {
	return &OrderLock{
		client: client,
		prefix: "orderlock:",
	}
}

// TryLock atomically claims the lock for one order. Returns false when
// another worker holds it.
func (l *OrderLock) TryLock(ctx context.Context, orderNumber string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+orderNumber, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis order lock: %w", err)
	}
	return ok, nil
}

// Unlock releases the lock. Releasing an expired lock is harmless.
func (l *OrderLock) Unlock(ctx context.Context, orderNumber string) error {
	if err := l.client.Del(ctx, l.prefix+orderNumber).Err(); err != nil {
		return fmt.Errorf("redis order unlock: %w", err)
	}
	return nil
}
