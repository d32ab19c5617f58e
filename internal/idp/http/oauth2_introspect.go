package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/openfedid/fedid/internal/idp/service"
	"github.com/openfedid/fedid/pkg/httpx"
	"github.com/openfedid/fedid/pkg/oidcrp"
	"github.com/openfedid/fedid/pkg/slogx"
)

// IntrospectionResponse represents the RFC 7662 introspection response.
// When a token is inactive, only the "active" field is returned.
type IntrospectionResponse struct {
	Active bool `json:"active"`

	// Optional fields, only present when active=true
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
}

// IntrospectHandler serves POST /v1/oauth2/introspect following RFC 7662.
// Callers authenticate with their client credentials; the response describes
// a stored access token without ever revealing why an inactive one is
// inactive.
type IntrospectHandler struct {
	TokenService *service.TokenService
}

func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
	clientID := strings.TrimSpace(r.Form.Get("client_id"))
	clientSecret := r.Form.Get("client_secret")

	if token == "" || clientID == "" {
		oidcrp.ErrInvalidRequest.WriteError(w)
		return
	}

	// 3. The caller must authenticate before learning anything about the
	// token.
	if _, err := h.TokenService.AuthenticateClient(ctx, clientID, clientSecret); err != nil {
		if errors.Is(err, service.ErrInvalidClient) {
			oidcrp.ErrInvalidClient.WriteError(w)
			return
		}
		log.Error("introspection client authentication failed", "err", err)
		oidcrp.ErrServerError.WriteError(w)
		return
	}

	// 4. Hints other than access_token are not supported; per RFC 7662 the
	// token is reported inactive without revealing why.
	if hint := r.Form.Get("token_type_hint"); hint != "" && hint != "access_token" {
		writeInactiveResponse(w)
		return
	}

	stored, holder, err := h.TokenService.IntrospectAccessToken(ctx, token)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidToken) {
			log.Error("introspection lookup failed", "err", err)
		}
		writeInactiveResponse(w)
		return
	}

	response := IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(stored.Scope, " "),
		ClientID:  stored.ClientID,
		TokenType: "Bearer",
		Iat:       stored.CreatedAt.Unix(),
		Sub:       holder.Subject,
	}
	if stored.ExpiresAt != nil {
		response.Exp = stored.ExpiresAt.Unix()
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

func writeInactiveResponse(w http.ResponseWriter) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, IntrospectionResponse{Active: false})
}
