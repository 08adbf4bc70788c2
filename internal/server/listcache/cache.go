// Package listcache keeps short-lived copies of expensive listing results,
// keyed by caller scope.
package listcache

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/clock"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL bounds how stale a served listing may be.
const DefaultTTL = 30 * time.Second

type entry[V any] struct {
	payload V
	expires time.Time
}

// Cache is safe for concurrent use. Payloads are shared between callers and
// must be treated as read-only.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	ttl     time.Duration
	clock   clock.Clock
	group   *singleflight.Group
}

// New creates a Cache. When coalesce is set, concurrent misses on one key
// share a single fetch.
func New[V any](ttl time.Duration, clk clock.Clock, coalesce bool) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	c := &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		clock:   clk,
	}
	if coalesce {
		c.group = &singleflight.Group{}
	}
	return c
}

// Fetcher produces a fresh payload for a key.
type Fetcher[V any] func(ctx context.Context) (V, error)

// GetOrFetch returns the unexpired payload stored under key, or calls fetch
// and stores its result. Failed fetches are not stored. cached reports
// whether the payload came from the cache.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch Fetcher[V]) (payload V, cached bool, err error) {
	if v, ok := c.lookup(key); ok {
		return v, true, nil
	}

	if c.group == nil {
		v, err := c.fetchAndStore(ctx, key, fetch)
		return v, false, err
	}

	// The shared fetch outlives any single caller; each caller stops
	// waiting on its own context only.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		return c.fetchAndStore(shared, key, fetch)
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	}
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !now.Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.payload, true
}

func (c *Cache[V]) fetchAndStore(ctx context.Context, key string, fetch Fetcher[V]) (V, error) {
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}

	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry[V]{payload: v, expires: now.Add(c.ttl)}
	return v, nil
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
