package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/openfedid/fedid/internal/idp/domain"
	"github.com/openfedid/fedid/internal/idp/service"
	"github.com/openfedid/fedid/pkg/clockx"
	"github.com/openfedid/fedid/pkg/httpx"
	"github.com/openfedid/fedid/pkg/oidcrp"
	"github.com/openfedid/fedid/pkg/slogx"
)

// TokenResponse is the successful token endpoint payload per RFC 6749.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenHandler serves POST /v1/oauth2/token.
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	TokenService *service.TokenService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	// 3. Handle the grant type
	switch r.Form.Get("grant_type") {
	case "client_credentials":
		h.handleClientCredentialsGrant(w, r, r.Form)
	case "refresh_token":
		h.handleRefreshGrant(w, r, r.Form)
	default:
		oidcrp.ErrUnsupportedGrantType.WriteError(w)
	}
}

func (h *TokenHandler) handleClientCredentialsGrant(
	w http.ResponseWriter,
	r *http.Request,
	form url.Values,
) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	clientID := strings.TrimSpace(form.Get("client_id"))
	clientSecret := form.Get("client_secret")
	scope := httpx.ParseSpaceDelimitedFields(form.Get("scope"))

	if clientID == "" {
		oidcrp.ErrInvalidRequest.WriteError(w)
		return
	}

	client, err := h.TokenService.AuthenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		if errors.Is(err, service.ErrInvalidClient) {
			oidcrp.ErrInvalidClient.WriteError(w)
			return
		}
		log.Error("client authentication failed", "err", err)
		oidcrp.ErrServerError.WriteError(w)
		return
	}

	token, err := h.TokenService.CreateAccessToken(ctx, &domain.Authentication{
		ClientID: client.ID,
		Subject:  client.ID,
		Scope:    scope,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingCredentials):
			oidcrp.ErrInvalidRequest.WriteError(w)
		case errors.Is(err, service.ErrUnknownClient), errors.Is(err, service.ErrInvalidClient):
			oidcrp.ErrInvalidClient.WriteError(w)
		default:
			log.Error("client_credentials grant failed", "err", err)
			oidcrp.ErrServerError.WriteError(w)
		}
		return
	}

	h.writeTokenResponse(w, token)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	refresh := form.Get("refresh_token")
	requested := httpx.ParseSpaceDelimitedFields(form.Get("scope"))

	if refresh == "" {
		oidcrp.ErrInvalidRequest.WriteError(w)
		return
	}

	token, err := h.TokenService.RefreshAccessToken(ctx, refresh, requested)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			oidcrp.ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrInvalidClient):
			oidcrp.ErrInvalidClient.WriteError(w)
		default:
			log.Error("refresh grant failed", "err", err)
			oidcrp.ErrServerError.WriteError(w)
		}
		return
	}

	h.writeTokenResponse(w, token)
}

func (h *TokenHandler) writeTokenResponse(w http.ResponseWriter, token domain.AccessToken) {
	response := TokenResponse{
		AccessToken: token.Value,
		TokenType:   "Bearer",
		Scope:       strings.Join(token.Scope, " "),
	}
	if token.ExpiresAt != nil {
		// Lifetimes are measured on the service's clock so responses agree
		// with the stored expiry.
		now := clockx.OrNow(h.TokenService.Clock)
		response.ExpiresIn = int(token.ExpiresAt.Sub(now).Seconds())
	}
	if token.RefreshToken != nil {
		response.RefreshToken = token.RefreshToken.Value
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}
