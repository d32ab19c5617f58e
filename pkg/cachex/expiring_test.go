package cachex

import (
	"testing"
	"time"

	"github.com/openfedid/fedid/pkg/clockx"
	"github.com/stretchr/testify/require"
)

type timedValue struct {
	name      string
	expiresAt *time.Time
}

func newTimedCache(clock clockx.Clock) *Expiring[timedValue] {
	return NewExpiring(clock, func(v timedValue) (time.Time, bool) {
		if v.expiresAt == nil {
			return time.Time{}, false
		}
		return *v.expiresAt, true
	})
}

func TestExpiringGetPut(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(time.Unix(1_700_000_000, 0))
	cache := newTimedCache(clock)

	exp := clock.Now().Add(time.Hour)
	cache.Put("a", timedValue{name: "first", expiresAt: &exp})

	got, ok := cache.Get("a")
	require.True(t, ok)
	require.Equal(t, "first", got.name)

	_, ok = cache.Get("missing")
	require.False(t, ok)
}

func TestExpiringEvictsOnRead(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(time.Unix(1_700_000_000, 0))
	cache := newTimedCache(clock)

	exp := clock.Now().Add(time.Minute)
	cache.Put("a", timedValue{name: "short-lived", expiresAt: &exp})
	require.Equal(t, 1, cache.Len())

	clock.Advance(2 * time.Minute)

	// The expired entry must be removed, not just skipped.
	_, ok := cache.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, cache.Len())
}

func TestExpiringNeverExpiringValue(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(time.Unix(1_700_000_000, 0))
	cache := newTimedCache(clock)

	cache.Put("a", timedValue{name: "forever"})
	clock.Advance(1000 * time.Hour)

	got, ok := cache.Get("a")
	require.True(t, ok)
	require.Equal(t, "forever", got.name)
}

func TestExpiringDelete(t *testing.T) {
	t.Parallel()

	cache := newTimedCache(clockx.Real{})
	cache.Put("a", timedValue{name: "x"})
	cache.Delete("a")

	_, ok := cache.Get("a")
	require.False(t, ok)
}

func TestExpiringExpiryBoundaryIsExclusive(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(time.Unix(1_700_000_000, 0))
	cache := newTimedCache(clock)

	exp := clock.Now().Add(time.Minute)
	cache.Put("a", timedValue{name: "edge", expiresAt: &exp})

	// Exactly at the expiry instant the entry is already stale.
	clock.Set(exp)
	_, ok := cache.Get("a")
	require.False(t, ok)
}
