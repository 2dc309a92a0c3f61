package ratelimit

import (
	"context"
	"fmt"
	"time"

	"hirejudge/internal/common/cache"
	pkgerrors "hirejudge/pkg/errors"
)

// Limiter decides whether another request for key fits the current window.
// It returns a SubmitTooFrequently error when the key is over its budget.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Config describes a fixed window budget.
type Config struct {
	Max          int           `yaml:"max"`
	Window       time.Duration `yaml:"window"`
	RedisTimeout time.Duration `yaml:"redisTimeout"`
	// LocalMaxKeys bounds the in-process backend.
	LocalMaxKeys int `yaml:"localMaxKeys"`
}

// RedisLimiter enforces fixed-window limits shared by all replicas.
type RedisLimiter struct {
	cache   cache.Cache
	max     int
	window  time.Duration
	timeout time.Duration
}

func NewRedisLimiter(c cache.Cache, cfg Config) *RedisLimiter {
	if cfg.RedisTimeout <= 0 {
		cfg.RedisTimeout = 200 * time.Millisecond
	}
	return &RedisLimiter{cache: c, max: cfg.Max, window: cfg.Window, timeout: cfg.RedisTimeout}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	if l.max <= 0 || l.window <= 0 {
		return nil
	}
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, err := l.cache.CountInWindow(ctxCache, key, l.window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	if int(count) > l.max {
		return pkgerrors.New(pkgerrors.SubmitTooFrequently).
			WithDetail("limit", l.max).
			WithDetail("window", l.window.String())
	}
	return nil
}

// Key builds the limiter key for one caller and action.
func Key(action string, userID int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", action, userID)
}
