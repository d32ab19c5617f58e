package http

import (
	"net/http"
	"strings"

	"github.com/openfedid/fedid/internal/idp/service"
	"github.com/openfedid/fedid/pkg/httpx"
	"github.com/openfedid/fedid/pkg/oidcrp"
	"github.com/openfedid/fedid/pkg/slogx"
)

// RevokeHandler serves POST /v1/oauth2/revoke following RFC 7009. It revokes
// access tokens by value; refresh tokens expire naturally or fall to
// housekeeping. All tokens, even invalid or unknown ones, return 200 OK to
// prevent token scanning attacks.
type RevokeHandler struct {
	TokenService *service.TokenService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		oidcrp.ErrInvalidRequest.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		oidcrp.ErrInvalidRequest.WriteError(w)
		return
	}

	token := r.Form.Get("token")
	hint := r.Form.Get("token_type_hint")

	if token == "" {
		oidcrp.ErrInvalidRequest.WriteError(w)
		return
	}

	if hint == "" || hint == "access_token" {
		if err := h.TokenService.RevokeAccessToken(ctx, token); err != nil {
			// Per RFC 7009, respond 200 OK even when revocation failed.
			log.Warn("revoke access token failed", "err", err)
		}
	}

	// 3. Return 200 OK with empty body per spec
	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}
