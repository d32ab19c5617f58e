package http

import (
	"errors"
	"net/http"

	"github.com/openfedid/fedid/pkg/httpx"
	"github.com/openfedid/fedid/pkg/oidcrp"
	"github.com/openfedid/fedid/pkg/slogx"
)

// IssuerDiscoveryResponse carries the resolved issuer for an identifier.
type IssuerDiscoveryResponse struct {
	Issuer string `json:"issuer"`
}

// DiscoveryHandler serves GET /v1/discovery/issuer. It resolves the
// "identifier" query parameter to an OpenID Connect issuer via WebFinger; a
// request without an identifier is redirected to the configured login page.
type DiscoveryHandler struct {
	Resolver *oidcrp.Resolver
}

func (h *DiscoveryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	resp, err := h.Resolver.IssuerFromRequest(ctx, r)
	if err != nil {
		switch {
		case errors.Is(err, oidcrp.ErrPolicyViolation):
			oidcrp.ErrAccessDenied.WriteError(w)
		case errors.Is(err, oidcrp.ErrInvalidIdentifier):
			oidcrp.ErrInvalidRequest.WriteError(w)
		case errors.Is(err, oidcrp.ErrNoIssuer):
			log.Warn("issuer discovery found nothing", "err", err)
			http.NotFound(w, r)
		default:
			log.Error("issuer discovery failed", "err", err)
			oidcrp.ErrServerError.WriteError(w)
		}
		return
	}

	if resp.RedirectURL != "" {
		http.Redirect(w, r, resp.RedirectURL, http.StatusFound)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, IssuerDiscoveryResponse{Issuer: resp.Issuer})
}
