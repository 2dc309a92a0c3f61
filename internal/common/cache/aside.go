package cache

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"time"
)

// missMarker records a cached absence so repeated misses skip the database.
const missMarker = "$MISS$"

// Policy controls how long loaded values stay cached.
type Policy struct {
	TTL time.Duration
	// MissTTL caches an absent value; zero disables negative caching.
	MissTTL time.Duration
}

// Loader fetches a value on a miss. found=false records an absence.
type Loader[T any] func(ctx context.Context) (value T, found bool, err error)

// GetOrLoad is cache-aside over JSON values. Cache failures fall through to
// load and load errors are never cached.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, policy Policy, load Loader[T]) (T, bool, error) {
	var zero T
	if cached, err := c.Get(ctx, key); err == nil && cached != "" {
		if cached == missMarker {
			return zero, false, nil
		}
		var value T
		if err := json.Unmarshal([]byte(cached), &value); err == nil {
			return value, true, nil
		}
	}

	value, found, err := load(ctx)
	if err != nil {
		return zero, false, err
	}
	if !found {
		if policy.MissTTL > 0 {
			_ = c.Set(ctx, key, missMarker, policy.MissTTL)
		}
		return zero, false, nil
	}
	if encoded, err := json.Marshal(value); err == nil {
		_ = c.Set(ctx, key, string(encoded), JitterTTL(policy.TTL))
	}
	return value, true, nil
}

// JitterTTL shortens ttl by up to 10% so keys written together expire apart.
func JitterTTL(ttl time.Duration) time.Duration {
	maxJitter := int64(ttl / 10)
	if maxJitter <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter+1))
	if err != nil {
		return ttl
	}
	return ttl - time.Duration(n.Int64())
}
