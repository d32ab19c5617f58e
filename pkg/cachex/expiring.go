// Package cachex provides the two in-memory caches the trust core relies on:
// an expiring cache with lazy eviction at read time, and a read-through
// loading cache that coalesces concurrent loads per key.
package cachex

import (
	"sync"
	"time"

	"github.com/openfedid/fedid/pkg/clockx"
)

// Expiring is a string-keyed cache holding at most one value per key. Each
// value's expiry is computed by the expiresAt function; Get evicts an expired
// entry rather than merely skipping it, so a stale value never lingers after
// it has been observed.
type Expiring[V any] struct {
	mu      sync.Mutex
	entries map[string]V

	clock clockx.Clock

	// expiresAt reports the value's expiry. ok=false means the value never
	// expires.
	expiresAt func(V) (t time.Time, ok bool)
}

// NewExpiring builds an Expiring cache. expiresAt must not be nil.
func NewExpiring[V any](clock clockx.Clock, expiresAt func(V) (time.Time, bool)) *Expiring[V] {
	return &Expiring[V]{
		entries:   make(map[string]V),
		clock:     clock,
		expiresAt: expiresAt,
	}
}

// Get returns the live value for key. An entry whose expiry has passed is
// deleted and reported as absent.
func (c *Expiring[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if exp, has := c.expiresAt(v); has && !exp.After(clockx.OrNow(c.clock)) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return v, true
}

// Put stores value under key, replacing any prior entry.
func (c *Expiring[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Delete removes key if present.
func (c *Expiring[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of stored entries, including ones that would be
// evicted on their next read.
func (c *Expiring[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
