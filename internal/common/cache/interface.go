package cache

import (
	"context"
	"time"
)

// Cache is the Redis surface used by the assessment service.
// Get returns "" with a nil error on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	// CountInWindow increments key and starts its expiry on the first hit of a window.
	CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	// TryLock acquires a best-effort lock that expires after ttl.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}
