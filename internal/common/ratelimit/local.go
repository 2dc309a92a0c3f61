package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"

	pkgerrors "hirejudge/pkg/errors"
)

type windowEntry struct {
	key       string
	count     int
	expiresAt time.Time
}

// LocalLimiter is a single-process fixed-window limiter. Windows expire
// after their TTL and the least recently used keys are evicted past maxKeys.
type LocalLimiter struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxKeys int
	max     int
	window  time.Duration
	now     func() time.Time
}

func NewLocalLimiter(cfg Config) *LocalLimiter {
	if cfg.LocalMaxKeys <= 0 {
		cfg.LocalMaxKeys = 10000
	}
	return &LocalLimiter{
		items:   make(map[string]*list.Element, cfg.LocalMaxKeys),
		order:   list.New(),
		maxKeys: cfg.LocalMaxKeys,
		max:     cfg.Max,
		window:  cfg.Window,
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) error {
	if l.max <= 0 || l.window <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if elem, ok := l.items[key]; ok {
		entry := elem.Value.(*windowEntry)
		if now.After(entry.expiresAt) {
			entry.count = 0
			entry.expiresAt = now.Add(l.window)
		}
		entry.count++
		l.order.MoveToFront(elem)
		if entry.count > l.max {
			return pkgerrors.New(pkgerrors.SubmitTooFrequently).
				WithDetail("limit", l.max).
				WithDetail("window", l.window.String())
		}
		return nil
	}

	elem := l.order.PushFront(&windowEntry{key: key, count: 1, expiresAt: now.Add(l.window)})
	l.items[key] = elem
	for len(l.items) > l.maxKeys {
		l.evictOldest()
	}
	return nil
}

// Len reports the number of tracked keys.
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *LocalLimiter) evictOldest() {
	elem := l.order.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*windowEntry)
	delete(l.items, entry.key)
	l.order.Remove(elem)
}
