package cachex

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openfedid/fedid/pkg/clockx"
	"github.com/stretchr/testify/require"
)

func TestLoadingLoadsOnceAndCaches(t *testing.T) {
	t.Parallel()

	var calls int32
	cache := NewLoading(clockx.Real{}, 0, func(_ context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "issuer-for-" + key, nil
	})

	ctx := context.Background()
	for range 3 {
		v, err := cache.Get(ctx, "joe@example.com")
		require.NoError(t, err)
		require.Equal(t, "issuer-for-joe@example.com", v)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	cache.Invalidate("joe@example.com")
	_, err := cache.Get(ctx, "joe@example.com")
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLoadingCoalescesConcurrentLoads(t *testing.T) {
	t.Parallel()

	var calls int32
	release := make(chan struct{})
	cache := NewLoading(clockx.Real{}, 0, func(_ context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "v", nil
	})

	const workers = 8
	var wg sync.WaitGroup
	results := make([]string, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.Get(context.Background(), "same-key")
			require.NoError(t, err)
			results[i] = v
		}()
	}

	// Give the workers time to pile up on the single in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		require.Equal(t, "v", v)
	}
}

func TestLoadingDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	var calls int32
	fail := errors.New("upstream down")
	cache := NewLoading(clockx.Real{}, 0, func(_ context.Context, _ string) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "", fail
		}
		return "recovered", nil
	})

	ctx := context.Background()
	_, err := cache.Get(ctx, "k")
	require.ErrorIs(t, err, fail)

	// The failure was not cached; the next lookup retries.
	v, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "recovered", v)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLoadingTTLExpiresValues(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(time.Unix(1_700_000_000, 0))
	var calls int32
	cache := NewLoading(clock, time.Hour, func(_ context.Context, _ string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	})

	ctx := context.Background()
	_, err := cache.Get(ctx, "k")
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	_, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clock.Advance(31 * time.Minute)
	_, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLoadingCancelledLoadIsNotCached(t *testing.T) {
	t.Parallel()

	var calls int32
	cache := NewLoading(clockx.Real{}, 0, func(ctx context.Context, _ string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.Get(ctx, "k")
	require.Error(t, err)

	// Nothing was stored from the abandoned call.
	v, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
