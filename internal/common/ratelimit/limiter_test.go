package ratelimit

import (
	"context"
	"testing"
	"time"

	"hirejudge/internal/common/cache"
	pkgerrors "hirejudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLimiterWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	limiter := NewRedisLimiter(rc, Config{Max: 2, Window: time.Minute})
	ctx := context.Background()
	key := Key("submit", 7)

	for i := 0; i < 2; i++ {
		if err := limiter.Allow(ctx, key); err != nil {
			t.Fatalf("call %d rejected: %v", i, err)
		}
	}
	err = limiter.Allow(ctx, key)
	if pkgerrors.GetCode(err) != pkgerrors.SubmitTooFrequently {
		t.Fatalf("third call err = %v, want SubmitTooFrequently", err)
	}
	if other := limiter.Allow(ctx, Key("submit", 8)); other != nil {
		t.Fatalf("other user should not share the window: %v", other)
	}

	mr.FastForward(61 * time.Second)
	if err := limiter.Allow(ctx, key); err != nil {
		t.Fatalf("window should reset after expiry: %v", err)
	}
}

func TestLocalLimiterWindowAndEviction(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLocalLimiter(Config{Max: 1, Window: time.Minute, LocalMaxKeys: 2})
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	if err := limiter.Allow(ctx, "a"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := limiter.Allow(ctx, "a"); pkgerrors.GetCode(err) != pkgerrors.SubmitTooFrequently {
		t.Fatalf("second err = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := limiter.Allow(ctx, "a"); err != nil {
		t.Fatalf("after window: %v", err)
	}

	_ = limiter.Allow(ctx, "b")
	_ = limiter.Allow(ctx, "c")
	if limiter.Len() != 2 {
		t.Fatalf("len = %d, want 2", limiter.Len())
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter := NewLocalLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := limiter.Allow(context.Background(), "k"); err != nil {
			t.Fatalf("disabled limiter rejected: %v", err)
		}
	}
}
