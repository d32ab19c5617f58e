package oidcrp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/openfedid/fedid/pkg/cachex"
	"github.com/openfedid/fedid/pkg/clockx"
	"github.com/openfedid/fedid/pkg/slogx"
)

// RelIssuer is the WebFinger link relation identifying an OpenID Connect
// issuer.
const RelIssuer = "http://openid.net/specs/connect/1.0/issuer"

const maxDiscoveryBody = 1 << 20

var (
	// ErrInvalidIdentifier marks input the normalization grammar rejects.
	ErrInvalidIdentifier = errors.New("invalid_identifier")

	// ErrNoIssuer means discovery produced no issuer for the identifier.
	ErrNoIssuer = errors.New("no_issuer")

	// ErrPolicyViolation means an issuer was resolved but rejected by the
	// allow or deny list.
	ErrPolicyViolation = errors.New("policy_violation")
)

// The stock URL parser is deliberately avoided here: it refuses inputs like
// "joe@example.com" that this grammar must accept. The scheme is split off
// first so a bare "https://" cannot backtrack into a phantom host.
var (
	schemePattern     = regexp.MustCompile(`^(https|acct|http|mailto):(//)?`)
	identifierPattern = regexp.MustCompile(`^(([^@/?#]+)@)?([^:/?#]+)(:(\d*))?([^?#]*)(\?([^#]*))?$`)
)

// Identifier is a normalized user identifier. Scheme is never empty after
// Normalize, and the fragment is always discarded.
type Identifier struct {
	Scheme   string
	UserInfo string
	Host     string
	Port     string // empty = unset
	Path     string
	Query    string
}

// String renders the identifier back to URI form.
func (id Identifier) String() string {
	var b strings.Builder
	if id.Scheme != "" {
		b.WriteString(id.Scheme)
		b.WriteString(":")
	}
	b.WriteString("//")
	if id.UserInfo != "" {
		b.WriteString(id.UserInfo)
		b.WriteString("@")
	}
	b.WriteString(id.Host)
	if id.Port != "" {
		b.WriteString(":")
		b.WriteString(id.Port)
	}
	b.WriteString(id.Path)
	if id.Query != "" {
		b.WriteString("?")
		b.WriteString(id.Query)
	}
	return b.String()
}

// Normalize parses a loosely specified identifier per OIDC Discovery
// resource normalization. When no scheme is supplied it is inferred: acct
// for bare user@host forms (userinfo present, no path, query, or port),
// https otherwise. The fragment is dropped unconditionally.
func Normalize(raw string) (Identifier, error) {
	// The fragment is discarded before any other processing.
	in, _, _ := strings.Cut(raw, "#")

	var scheme string
	if prefix := schemePattern.FindString(in); prefix != "" {
		scheme = strings.TrimSuffix(strings.TrimSuffix(prefix, "//"), ":")
		in = in[len(prefix):]
	}

	m := identifierPattern.FindStringSubmatch(in)
	if m == nil {
		return Identifier{}, ErrInvalidIdentifier
	}

	id := Identifier{
		Scheme:   scheme,
		UserInfo: m[2],
		Host:     m[3],
		Port:     m[5],
		Path:     m[6],
		Query:    m[8],
	}

	if id.Scheme == "" {
		if id.UserInfo != "" && id.Path == "" && id.Query == "" && id.Port == "" {
			id.Scheme = "acct"
		} else {
			id.Scheme = "https"
		}
	}

	return id, nil
}

// Resolver turns user-supplied identifiers into issuer URLs via WebFinger
// discovery. Resolutions are cached per normalized identifier; concurrent
// lookups for the same identifier share a single discovery call. Failed
// resolutions are not cached, so a transient authority outage does not pin a
// negative result.
type Resolver struct {
	// HTTPClient performs the discovery GET. Its timeout bounds the remote
	// call; nil falls back to a 10 second client.
	HTTPClient *http.Client

	Clock clockx.Clock

	// Allowlist, when non-empty, restricts resolution to its members.
	// Denylist rejects its members unconditionally. Both hold issuer URLs.
	Allowlist []string
	Denylist  []string

	// ParameterName is the request parameter read by IssuerFromRequest.
	// Defaults to "identifier".
	ParameterName string

	// LoginPageURL is the redirect target for requests that carry no
	// identifier.
	LoginPageURL string

	// CacheTTL bounds how long a resolved issuer is reused. Zero keeps
	// resolutions forever.
	CacheTTL time.Duration

	once  sync.Once
	cache *cachex.Loading[string]
}

// IssuerResponse carries either a resolved issuer or the redirect target for
// requests that supplied no identifier.
type IssuerResponse struct {
	Issuer      string
	RedirectURL string
}

// IssuerFromRequest reads the identifier parameter from an incoming request
// and resolves it. A request without an identifier yields the login-page
// redirect rather than an error.
func (r *Resolver) IssuerFromRequest(ctx context.Context, req *http.Request) (IssuerResponse, error) {
	name := r.ParameterName
	if name == "" {
		name = "identifier"
	}

	identifier := req.FormValue(name)
	if identifier == "" {
		slogx.FromContext(ctx).Warn("no identifier supplied, directing to login page",
			"login_page", r.LoginPageURL)
		return IssuerResponse{RedirectURL: r.LoginPageURL}, nil
	}

	issuer, err := r.Resolve(ctx, identifier)
	if err != nil {
		return IssuerResponse{}, err
	}
	return IssuerResponse{Issuer: issuer}, nil
}

// Resolve normalizes raw and resolves it to an issuer URL, enforcing the
// allow and deny lists on the result.
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	l := slogx.FromContext(ctx)

	id, err := Normalize(raw)
	if err != nil {
		l.Warn("could not normalize identifier", "identifier", raw)
		return "", err
	}

	issuer, err := r.cacheRef().Get(ctx, id.String())
	if err != nil {
		l.Warn("issuer discovery failed", "identifier", id.String(), "error", err)
		if errors.Is(err, ErrNoIssuer) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrNoIssuer, err)
	}

	if len(r.Allowlist) > 0 && !containsString(r.Allowlist, issuer) {
		return "", fmt.Errorf("%w: issuer not in allowlist: %s", ErrPolicyViolation, issuer)
	}
	if containsString(r.Denylist, issuer) {
		return "", fmt.Errorf("%w: issuer in denylist: %s", ErrPolicyViolation, issuer)
	}

	return issuer, nil
}

// fetch is the cache's load path: one WebFinger GET per normalized
// identifier.
func (r *Resolver) fetch(ctx context.Context, key string) (string, error) {
	l := slogx.FromContext(ctx)

	id, err := Normalize(key)
	if err != nil {
		return "", err
	}

	// Honouring plain http here is strictly for development setups.
	transport := "https://"
	if id.Scheme == "http" {
		transport = "http://"
		l.Warn("webfinger endpoint must use the https URI scheme")
	}

	endpoint := transport + id.Host
	if id.Port != "" {
		endpoint += ":" + id.Port
	}
	endpoint += id.Path + "/.well-known/webfinger"

	params := url.Values{}
	params.Set("resource", id.String())
	params.Set("rel", RelIssuer)

	query := params.Encode()
	if id.Query != "" {
		// The identifier's own query string is preserved ahead of the
		// discovery parameters.
		query = id.Query + "&" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query, nil)
	if err != nil {
		return "", err
	}

	l.Info("webfinger lookup", "url", endpoint, "resource", id.String())

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("webfinger: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBody))
	if err != nil {
		return "", err
	}

	var doc struct {
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", err
	}

	for _, link := range doc.Links {
		if link.Rel == RelIssuer && link.Href != "" {
			return link.Href, nil
		}
	}

	// No matching link. For http(s) identifiers, assume the input itself is
	// the issuer; anything else is unresolvable.
	if id.Scheme == "http" || id.Scheme == "https" {
		l.Warn("no issuer link found, returning normalized identifier", "identifier", id.String())
		return id.String(), nil
	}

	l.Warn("no issuer found", "identifier", id.String())
	return "", ErrNoIssuer
}

func (r *Resolver) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (r *Resolver) cacheRef() *cachex.Loading[string] {
	r.once.Do(func() {
		r.cache = cachex.NewLoading(r.Clock, r.CacheTTL, r.fetch)
	})
	return r.cache
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
