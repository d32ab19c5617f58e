package oidcrp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openfedid/fedid/pkg/clockx"
	"github.com/stretchr/testify/require"
)

func newAuthority(t *testing.T, calls *atomic.Int32, respond func(token string) any) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "rp-client", r.PostForm.Get("client_id"))
		require.Equal(t, "rp-secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(respond(r.PostForm.Get("token")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newValidator(endpoint string, clock clockx.Clock) *Validator {
	return &Validator{
		Endpoint:     endpoint,
		ClientID:     "rp-client",
		ClientSecret: "rp-secret",
		Clock:        clock,
	}
}

func TestValidatorAcceptsActiveToken(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	exp := clock.Now().Add(time.Hour).Unix()

	var calls atomic.Int32
	srv := newAuthority(t, &calls, func(string) any {
		return map[string]any{
			"active": true,
			"sub":    "alice",
			"scope":  "openid profile",
			"exp":    exp,
		}
	})

	v := newValidator(srv.URL, clock)
	ctx := context.Background()

	identity, ok := v.LoadAuthentication(ctx, "opaque-token")
	require.True(t, ok)
	require.Equal(t, "alice", identity.Subject)
	require.Equal(t, []string{RoleAPI}, identity.Authorities)

	info, ok := v.ReadAccessToken(ctx, "opaque-token")
	require.True(t, ok)
	require.Equal(t, "opaque-token", info.Value)
	require.Equal(t, []string{"openid", "profile"}, info.Scope)
	require.NotNil(t, info.ExpiresAt)
	require.Equal(t, exp, info.ExpiresAt.Unix())

	// Both reads were served by one remote call.
	require.Equal(t, int32(1), calls.Load())
}

func TestValidatorRejectsInactiveToken(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newAuthority(t, &calls, func(string) any {
		return map[string]any{"active": false}
	})

	v := newValidator(srv.URL, nil)
	ctx := context.Background()

	_, ok := v.LoadAuthentication(ctx, "revoked-token")
	require.False(t, ok)

	// Failures are never cached; the next attempt asks the authority again.
	_, ok = v.LoadAuthentication(ctx, "revoked-token")
	require.False(t, ok)
	require.Equal(t, int32(2), calls.Load())
}

func TestValidatorRejectsErrorResponse(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newAuthority(t, &calls, func(string) any {
		return map[string]any{"error": "invalid_request"}
	})

	v := newValidator(srv.URL, nil)

	_, ok := v.LoadAuthentication(context.Background(), "whatever")
	require.False(t, ok)
}

func TestValidatorRejectsExpiredClaim(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	var calls atomic.Int32
	srv := newAuthority(t, &calls, func(string) any {
		return map[string]any{
			"active": true,
			"sub":    "alice",
			"exp":    clock.Now().Add(-time.Minute).Unix(),
		}
	})

	v := newValidator(srv.URL, clock)

	_, ok := v.ReadAccessToken(context.Background(), "stale-token")
	require.False(t, ok)
	require.Equal(t, 0, v.cacheRef().Len())
}

func TestValidatorRejectsMissingExpiry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newAuthority(t, &calls, func(string) any {
		return map[string]any{"active": true, "sub": "alice"}
	})

	v := newValidator(srv.URL, nil)

	_, ok := v.LoadAuthentication(context.Background(), "no-exp-token")
	require.False(t, ok)
}

func TestValidatorRejectsNonObjectBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["not", "an", "object"]`))
	}))
	t.Cleanup(srv.Close)

	v := newValidator(srv.URL, nil)

	_, ok := v.LoadAuthentication(context.Background(), "whatever")
	require.False(t, ok)
}

func TestValidatorReportsTransportFailureAsInvalid(t *testing.T) {
	t.Parallel()

	v := newValidator("http://127.0.0.1:1/introspect", nil)
	v.HTTPClient = &http.Client{Timeout: 200 * time.Millisecond}

	_, ok := v.LoadAuthentication(context.Background(), "whatever")
	require.False(t, ok)
}

func TestValidatorEvictsExpiredEntryWithoutRemoteCall(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	var calls atomic.Int32
	srv := newAuthority(t, &calls, func(string) any {
		return map[string]any{
			"active": true,
			"sub":    "alice",
			"exp":    clock.Now().Add(time.Minute).Unix(),
		}
	})

	v := newValidator(srv.URL, clock)
	ctx := context.Background()

	_, ok := v.LoadAuthentication(ctx, "short-lived")
	require.True(t, ok)
	require.Equal(t, 1, v.cacheRef().Len())

	clock.Advance(2 * time.Minute)

	// The expired entry is evicted by the cache read itself, before any
	// remote traffic happens.
	_, ok = v.checkCache("short-lived")
	require.False(t, ok)
	require.Equal(t, 0, v.cacheRef().Len())
	require.Equal(t, int32(1), calls.Load())
}
