package cachex

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openfedid/fedid/pkg/clockx"
)

// LoadFunc computes the value for a key on a cache miss.
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

// Loading is a read-through cache. On a miss the load function runs at most
// once per key at a time: concurrent callers for the same key attach to the
// in-flight load instead of issuing duplicates.
//
// Failed loads are not cached; the next lookup for that key retries. A value
// is also never stored when the load finished after its context was
// cancelled, so an abandoned call leaves no partial cache state.
type Loading[V any] struct {
	mu      sync.Mutex
	entries map[string]loadedEntry[V]

	group singleflight.Group
	load  LoadFunc[V]
	clock clockx.Clock

	// ttl bounds how long a loaded value is served. Zero means values never
	// expire.
	ttl time.Duration
}

type loadedEntry[V any] struct {
	value    V
	loadedAt time.Time
}

// NewLoading builds a Loading cache around load. ttl=0 keeps values forever.
func NewLoading[V any](clock clockx.Clock, ttl time.Duration, load LoadFunc[V]) *Loading[V] {
	return &Loading[V]{
		entries: make(map[string]loadedEntry[V]),
		load:    load,
		clock:   clock,
		ttl:     ttl,
	}
}

// Get returns the cached value for key, loading it on a miss.
func (c *Loading[V]) Get(ctx context.Context, key string) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have stored the value while this one was
		// waiting on the flight group.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		v, err := c.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			// The caller gave up; hand the value back but do not cache it.
			return v, ctx.Err()
		}
		c.store(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Invalidate drops the cached value for key, if any.
func (c *Loading[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Loading[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.ttl > 0 && clockx.OrNow(c.clock).Sub(e.loadedAt) >= c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Loading[V]) store(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = loadedEntry[V]{value: value, loadedAt: clockx.OrNow(c.clock)}
}
