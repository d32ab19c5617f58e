package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openfedid/fedid/internal/idp/service"
	"github.com/openfedid/fedid/internal/idp/store"
	"github.com/openfedid/fedid/pkg/httpx"
	"github.com/openfedid/fedid/pkg/oidcrp"
	"github.com/openfedid/fedid/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	TokenService     *service.TokenService
	BootstrapService *service.BootstrapService
	Resolver         *oidcrp.Resolver

	// Validator is optional; when set, the bearer-protected relying-party
	// endpoints are registered.
	Validator *oidcrp.Validator
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerBootstrap()
	r.registerOAuth2()
	r.registerDiscovery()
	r.registerRelyingParty()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerBootstrap() {
	if r.BootstrapService == nil {
		return
	}

	// POST /bootstrap - strict rate limit by IP (one-time setup endpoint).
	bootstrapHandler := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(bootstrapHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerOAuth2() {
	// POST /token - strict rate limit by IP, covers both grant types.
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// Introspection endpoint (RFC 7662). Client-authenticated per request.
	introspectHandler := &IntrospectHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/introspect",
		httpx.Chain(introspectHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// Revocation endpoint (RFC 7009).
	revokeHandler := &RevokeHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerDiscovery() {
	discoveryHandler := &DiscoveryHandler{Resolver: r.Resolver}
	r.Mux.Handle("GET /v1/discovery/issuer",
		httpx.Chain(discoveryHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerRelyingParty() {
	if r.Validator == nil {
		return
	}

	whoamiHandler := &WhoamiHandler{Validator: r.Validator}
	r.Mux.Handle("GET /v1/whoami",
		httpx.Chain(whoamiHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
