package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/openfedid/fedid/internal/idp/domain"
	"github.com/openfedid/fedid/internal/idp/service"
	"github.com/openfedid/fedid/pkg/httpx"
	"github.com/openfedid/fedid/pkg/oidcrp"
	"github.com/openfedid/fedid/pkg/slogx"
)

type BootstrapRequest struct {
	ClientName   string `json:"client_name"`
	AllowRefresh bool   `json:"allow_refresh"`

	AccessTokenValiditySeconds  *int `json:"access_token_validity_seconds,omitempty"`
	RefreshTokenValiditySeconds *int `json:"refresh_token_validity_seconds,omitempty"`
}

type BootstrapResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP performs one-time setup: it registers the first OAuth2 client
// and returns its generated secret. Requires the pre-configured token in
// the X-Bootstrap-Token header and refuses once any client exists.
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())

	// 1. Check if enabled
	if h.BootstrapService.Token == "" {
		(&oidcrp.OAuth2Error{
			StatusCode:  http.StatusNotFound,
			Code:        "not_found",
			Description: "bootstrap endpoint is not enabled",
		}).WriteError(w)
		return
	}

	// 2. Require bootstrap token header
	token := r.Header.Get("X-Bootstrap-Token")
	if token == "" {
		(&oidcrp.OAuth2Error{
			StatusCode:  http.StatusUnauthorized,
			Code:        "unauthorized",
			Description: "bootstrap token is required in X-Bootstrap-Token header",
		}).WriteError(w)
		return
	}

	// 3. Parse and validate the request body
	var req BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		oidcrp.ErrInvalidRequest.WriteError(w)
		return
	}
	if strings.TrimSpace(req.ClientName) == "" {
		oidcrp.ErrInvalidRequest.WriteError(w)
		return
	}

	// 4. Perform bootstrap
	clientID, clientSecret, err := h.BootstrapService.Bootstrap(
		r.Context(),
		token,
		domain.BootstrapData{
			ClientName:                  strings.TrimSpace(req.ClientName),
			AllowRefresh:                req.AllowRefresh,
			AccessTokenValiditySeconds:  req.AccessTokenValiditySeconds,
			RefreshTokenValiditySeconds: req.RefreshTokenValiditySeconds,
		},
	)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBootstrapAlready):
			(&oidcrp.OAuth2Error{
				StatusCode:  http.StatusUnauthorized,
				Code:        "unauthorized",
				Description: "system has already been bootstrapped",
			}).WriteError(w)
		case errors.Is(err, service.ErrBootstrapUnauthorized):
			(&oidcrp.OAuth2Error{
				StatusCode:  http.StatusUnauthorized,
				Code:        "unauthorized",
				Description: "invalid bootstrap token",
			}).WriteError(w)
		default:
			l.Error("bootstrap failed", "error", err)
			oidcrp.ErrServerError.WriteError(w)
		}
		return
	}

	// 5. Respond with the client id and secret (only shown once)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, BootstrapResponse{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}
