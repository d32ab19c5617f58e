package http

import (
	"net/http"
	"strings"

	"github.com/openfedid/fedid/pkg/httpx"
	"github.com/openfedid/fedid/pkg/oidcrp"
)

// WhoamiResponse describes the identity behind a presented bearer token.
type WhoamiResponse struct {
	Subject     string   `json:"sub"`
	Authorities []string `json:"authorities"`
	Scope       string   `json:"scope,omitempty"`
	Exp         int64    `json:"exp,omitempty"`
}

// WhoamiHandler serves GET /v1/whoami. The bearer token is validated against
// the remote introspection authority; an invalid, expired, or missing token
// yields 401 without detail.
type WhoamiHandler struct {
	Validator *oidcrp.Validator
}

func (h *WhoamiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if bearer == "" || bearer == r.Header.Get("Authorization") {
		w.Header().Set("WWW-Authenticate", `Bearer realm="fedid"`)
		oidcrp.ErrInvalidGrant.WriteError(w)
		return
	}

	identity, ok := h.Validator.LoadAuthentication(ctx, bearer)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="fedid", error="invalid_token"`)
		oidcrp.ErrInvalidGrant.WriteError(w)
		return
	}

	response := WhoamiResponse{
		Subject:     identity.Subject,
		Authorities: identity.Authorities,
	}
	if info, ok := h.Validator.ReadAccessToken(ctx, bearer); ok {
		response.Scope = strings.Join(info.Scope, " ")
		if info.ExpiresAt != nil {
			response.Exp = info.ExpiresAt.Unix()
		}
	}

	httpx.WriteJSON(w, http.StatusOK, response)
}
