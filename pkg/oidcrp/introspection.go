package oidcrp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/openfedid/fedid/pkg/cachex"
	"github.com/openfedid/fedid/pkg/clockx"
	"github.com/openfedid/fedid/pkg/httpx"
	"github.com/openfedid/fedid/pkg/slogx"
)

// RoleAPI is the fixed authority granted to identities established through
// introspection.
const RoleAPI = "ROLE_API"

// maxIntrospectionBody bounds how much of an authority's response is read.
const maxIntrospectionBody = 1 << 20

// Identity is the authenticated principal derived from an introspection
// response.
type Identity struct {
	Subject     string
	Authorities []string
}

// TokenInfo is the validated snapshot of a remote token: the original opaque
// value plus the claims the authority reported for it.
type TokenInfo struct {
	Value     string
	Scope     []string
	ExpiresAt *time.Time
	Claims    map[string]any
}

type introspectionEntry struct {
	token    *TokenInfo
	identity *Identity
}

// Validator checks opaque bearer tokens against a remote RFC 7662
// introspection endpoint and caches validated (token, identity) pairs until
// the token's own expiry.
//
// Validation failure is a value, not an error: expired, revoked, unreadable
// and unreachable all surface as a false second return, logged but never
// propagated. Only tokens with an expiry in the future ever enter the cache,
// and a cached entry is evicted the moment a read observes it expired.
type Validator struct {
	// Endpoint is the introspection URL on the authority.
	Endpoint string

	// ClientID and ClientSecret authenticate this relying party to the
	// authority.
	ClientID     string
	ClientSecret string

	// HTTPClient performs the introspection POST. Its timeout bounds the
	// remote call; nil falls back to a 10 second client.
	HTTPClient *http.Client

	Clock clockx.Clock

	once  sync.Once
	cache *cachex.Expiring[introspectionEntry]
}

// LoadAuthentication resolves a bearer string to its authenticated identity,
// or reports false if the token is invalid, expired, or the authority could
// not be reached.
func (v *Validator) LoadAuthentication(ctx context.Context, token string) (*Identity, bool) {
	if entry, ok := v.checkCache(token); ok {
		return entry.identity, true
	}
	if !v.parseToken(ctx, token) {
		return nil, false
	}

	// Re-consult the cache: the entry just written may already have expired
	// within this same call.
	if entry, ok := v.checkCache(token); ok {
		return entry.identity, true
	}
	return nil, false
}

// ReadAccessToken resolves a bearer string to its validated token snapshot,
// following the same algorithm as LoadAuthentication.
func (v *Validator) ReadAccessToken(ctx context.Context, token string) (*TokenInfo, bool) {
	if entry, ok := v.checkCache(token); ok {
		return entry.token, true
	}
	if !v.parseToken(ctx, token) {
		return nil, false
	}
	if entry, ok := v.checkCache(token); ok {
		return entry.token, true
	}
	return nil, false
}

// checkCache runs before any remote call on every validation attempt. The
// underlying cache evicts an expired entry on read rather than skipping it.
func (v *Validator) checkCache(token string) (introspectionEntry, bool) {
	return v.cacheRef().Get(token)
}

// parseToken posts the token to the authority, validates the response, and
// caches the (token, identity) pair when the reported expiry is in the
// future. Returns whether a live entry was cached.
func (v *Validator) parseToken(ctx context.Context, token string) bool {
	l := slogx.FromContext(ctx)

	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", v.ClientID)
	form.Set("client_secret", v.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		l.Error("introspection request build failed", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient().Do(req)
	if err != nil {
		l.Error("introspection call failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		l.Error("introspection call rejected", "status", resp.StatusCode)
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIntrospectionBody))
	if err != nil {
		l.Error("introspection response read failed", "error", err)
		return false
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil || claims == nil {
		// Not a JSON object.
		return false
	}

	if _, hasErr := claims["error"]; hasErr {
		return false
	}
	if active, _ := claims["active"].(bool); !active {
		// Not an error, the token is simply invalid.
		return false
	}

	info := tokenInfoFromClaims(claims, token)
	subject, _ := claims["sub"].(string)
	identity := &Identity{
		Subject:     subject,
		Authorities: []string{RoleAPI},
	}

	now := clockx.OrNow(v.Clock)
	if info.ExpiresAt == nil || !info.ExpiresAt.After(now) {
		// Already expired (or no expiry reported); never cached.
		return false
	}

	if ctx.Err() != nil {
		// The caller abandoned the request; leave no cache state behind.
		return false
	}

	v.cacheRef().Put(token, introspectionEntry{token: info, identity: identity})
	return true
}

func (v *Validator) httpClient() *http.Client {
	if v.HTTPClient != nil {
		return v.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (v *Validator) cacheRef() *cachex.Expiring[introspectionEntry] {
	v.once.Do(func() {
		v.cache = cachex.NewExpiring(v.Clock, func(e introspectionEntry) (time.Time, bool) {
			if e.token.ExpiresAt == nil {
				return time.Time{}, false
			}
			return *e.token.ExpiresAt, true
		})
	})
	return v.cache
}

func tokenInfoFromClaims(claims map[string]any, value string) *TokenInfo {
	info := &TokenInfo{
		Value:  value,
		Claims: claims,
	}

	if scope, ok := claims["scope"].(string); ok {
		info.Scope = httpx.ParseSpaceDelimitedFields(scope)
	}

	// RFC 7662 carries exp as NumericDate seconds.
	if exp, ok := claims["exp"].(float64); ok {
		at := time.Unix(int64(exp), 0)
		info.ExpiresAt = &at
	}

	return info
}
