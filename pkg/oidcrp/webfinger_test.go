package oidcrp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("bare user@host infers acct", func(t *testing.T) {
		id, err := Normalize("joe@example.com")
		require.NoError(t, err)
		require.Equal(t, "acct", id.Scheme)
		require.Equal(t, "joe", id.UserInfo)
		require.Equal(t, "example.com", id.Host)
		require.Equal(t, "acct://joe@example.com", id.String())
	})

	t.Run("bare host infers https", func(t *testing.T) {
		id, err := Normalize("example.com")
		require.NoError(t, err)
		require.Equal(t, "https", id.Scheme)
		require.Equal(t, "https://example.com", id.String())
	})

	t.Run("host with path infers https", func(t *testing.T) {
		id, err := Normalize("example.com/path")
		require.NoError(t, err)
		require.Equal(t, "https", id.Scheme)
		require.Equal(t, "https://example.com/path", id.String())
	})

	t.Run("user@host with path infers https, not acct", func(t *testing.T) {
		id, err := Normalize("joe@example.com/path")
		require.NoError(t, err)
		require.Equal(t, "https", id.Scheme)
		require.Equal(t, "joe", id.UserInfo)
		require.Equal(t, "example.com", id.Host)
		require.Equal(t, "/path", id.Path)
	})

	t.Run("fragment after a path is discarded", func(t *testing.T) {
		id, err := Normalize("example.com/path#frag")
		require.NoError(t, err)
		require.Equal(t, "example.com", id.Host)
		require.Equal(t, "/path", id.Path)
		require.Equal(t, "https://example.com/path", id.String())
	})

	t.Run("user@host with port infers https, not acct", func(t *testing.T) {
		id, err := Normalize("joe@example.com:8080")
		require.NoError(t, err)
		require.Equal(t, "https", id.Scheme)
		require.Equal(t, "joe", id.UserInfo)
		require.Equal(t, "8080", id.Port)
	})

	t.Run("explicit schemes are preserved", func(t *testing.T) {
		for raw, scheme := range map[string]string{
			"https://example.com":    "https",
			"http://example.com":     "http",
			"acct:joe@example.com":   "acct",
			"mailto:joe@example.com": "mailto",
		} {
			id, err := Normalize(raw)
			require.NoError(t, err, raw)
			require.Equal(t, scheme, id.Scheme, raw)
		}
	})

	t.Run("fragment is always discarded", func(t *testing.T) {
		id, err := Normalize("example.com?login_hint=joe#fragment")
		require.NoError(t, err)
		require.Equal(t, "https", id.Scheme)
		require.Equal(t, "login_hint=joe", id.Query)
		require.NotContains(t, id.String(), "fragment")
	})

	t.Run("unparseable input is rejected", func(t *testing.T) {
		for _, raw := range []string{"", "https://", ":"} {
			_, err := Normalize(raw)
			require.ErrorIs(t, err, ErrInvalidIdentifier, raw)
		}
	})
}

func newDiscoveryServer(t *testing.T, calls *atomic.Int32, links []map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/.well-known/webfinger", r.URL.Path)
		require.Equal(t, RelIssuer, r.URL.Query().Get("rel"))
		require.NotEmpty(t, r.URL.Query().Get("resource"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"links": links})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// hostIdentifier renders an httptest server URL as a plain http identifier.
func hostIdentifier(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return "http://" + u.Host
}

func TestResolverReturnsMatchingLink(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newDiscoveryServer(t, &calls, []map[string]string{
		{"rel": "something-else", "href": "https://wrong.example.com"},
		{"rel": RelIssuer, "href": "https://issuer.example.com"},
	})

	r := &Resolver{}
	issuer, err := r.Resolve(context.Background(), hostIdentifier(t, srv))
	require.NoError(t, err)
	require.Equal(t, "https://issuer.example.com", issuer)
}

func TestResolverCachesResolutions(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newDiscoveryServer(t, &calls, []map[string]string{
		{"rel": RelIssuer, "href": "https://issuer.example.com"},
	})

	r := &Resolver{}
	ctx := context.Background()
	identifier := hostIdentifier(t, srv)

	for i := 0; i < 3; i++ {
		issuer, err := r.Resolve(ctx, identifier)
		require.NoError(t, err)
		require.Equal(t, "https://issuer.example.com", issuer)
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestResolverCoalescesConcurrentLookups(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"links": []map[string]string{{"rel": RelIssuer, "href": "https://issuer.example.com"}},
		})
	}))
	t.Cleanup(srv.Close)

	r := &Resolver{}
	identifier := hostIdentifier(t, srv)

	var wg sync.WaitGroup
	started := make(chan struct{}, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			issuer, err := r.Resolve(context.Background(), identifier)
			require.NoError(t, err)
			require.Equal(t, "https://issuer.example.com", issuer)
		}()
	}
	for i := 0; i < 8; i++ {
		<-started
	}
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
}

func TestResolverFallsBackToIdentifierForHTTPSchemes(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newDiscoveryServer(t, &calls, nil)

	r := &Resolver{}
	identifier := hostIdentifier(t, srv)

	issuer, err := r.Resolve(context.Background(), identifier)
	require.NoError(t, err)
	require.Equal(t, identifier, issuer)
}

func TestResolverGivesUpForNonHTTPSchemes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"links": []map[string]string{}})
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	r := &Resolver{HTTPClient: srv.Client()}

	_, err = r.Resolve(context.Background(), "acct:joe@"+u.Host)
	require.ErrorIs(t, err, ErrNoIssuer)
}

func TestResolverEnforcesAllowlist(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newDiscoveryServer(t, &calls, []map[string]string{
		{"rel": RelIssuer, "href": "https://issuer.example.com"},
	})

	r := &Resolver{Allowlist: []string{"https://trusted.example.com"}}

	_, err := r.Resolve(context.Background(), hostIdentifier(t, srv))
	require.ErrorIs(t, err, ErrPolicyViolation)
}

func TestResolverEnforcesDenylist(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newDiscoveryServer(t, &calls, []map[string]string{
		{"rel": RelIssuer, "href": "https://issuer.example.com"},
	})

	// The denylist wins even when the issuer is allowlisted.
	r := &Resolver{
		Allowlist: []string{"https://issuer.example.com"},
		Denylist:  []string{"https://issuer.example.com"},
	}

	_, err := r.Resolve(context.Background(), hostIdentifier(t, srv))
	require.ErrorIs(t, err, ErrPolicyViolation)
}

func TestResolverReportsTransportFailure(t *testing.T) {
	t.Parallel()

	r := &Resolver{}

	_, err := r.Resolve(context.Background(), "http://127.0.0.1:1")
	require.ErrorIs(t, err, ErrNoIssuer)
}

func TestIssuerFromRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newDiscoveryServer(t, &calls, []map[string]string{
		{"rel": RelIssuer, "href": "https://issuer.example.com"},
	})

	r := &Resolver{LoginPageURL: "https://rp.example.com/login"}
	ctx := context.Background()

	t.Run("missing identifier redirects to login", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/discovery", nil)
		resp, err := r.IssuerFromRequest(ctx, req)
		require.NoError(t, err)
		require.Empty(t, resp.Issuer)
		require.Equal(t, "https://rp.example.com/login", resp.RedirectURL)
	})

	t.Run("identifier parameter is resolved", func(t *testing.T) {
		target := "/discovery?identifier=" + url.QueryEscape(hostIdentifier(t, srv))
		req := httptest.NewRequest(http.MethodGet, target, nil)

		resp, err := r.IssuerFromRequest(ctx, req)
		require.NoError(t, err)
		require.Equal(t, "https://issuer.example.com", resp.Issuer)
		require.Empty(t, resp.RedirectURL)
	})

	t.Run("custom parameter name", func(t *testing.T) {
		custom := &Resolver{ParameterName: "home"}
		srv2 := newDiscoveryServer(t, new(atomic.Int32), []map[string]string{
			{"rel": RelIssuer, "href": "https://second.example.com"},
		})

		target := "/discovery?home=" + url.QueryEscape(hostIdentifier(t, srv2))
		req := httptest.NewRequest(http.MethodGet, target, nil)

		resp, err := custom.IssuerFromRequest(ctx, req)
		require.NoError(t, err)
		require.Equal(t, "https://second.example.com", resp.Issuer)
	})
}
