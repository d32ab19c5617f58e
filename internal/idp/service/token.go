package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openfedid/fedid/internal/idp/domain"
	"github.com/openfedid/fedid/internal/idp/store"
	"github.com/openfedid/fedid/pkg/clockx"
	"github.com/openfedid/fedid/pkg/cryptox"
	"github.com/openfedid/fedid/pkg/idx"
	"github.com/openfedid/fedid/pkg/slogx"
)

var (
	ErrMissingCredentials = errors.New("missing_credentials")
	ErrUnknownClient      = errors.New("unknown_client")
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvalidToken       = errors.New("invalid_token")
)

// TokenEnhancer is an optional hook invoked after a token is assembled and
// before it is persisted. Implementations may attach additional claims but
// must not change identity fields.
type TokenEnhancer interface {
	Enhance(ctx context.Context, token *domain.AccessToken, auth *domain.Authentication) error
}

// TokenService mints and refreshes bearer tokens.
//
// Concurrency: issuance and refresh are safe to call concurrently for
// different clients and tokens. Two concurrent refreshes presenting the same
// refresh-token value race on clear-then-persist; the last writer wins and
// earlier winners' tokens are cleared. That is accepted weak consistency,
// not a target to strengthen.
type TokenService struct {
	Store store.Store
	Clock clockx.Clock

	// Enhancer, when set, runs on every minted access token.
	Enhancer TokenEnhancer

	// Fallback validities, in seconds, for clients that do not define their
	// own. Zero or negative means tokens never expire.
	DefaultAccessValiditySeconds  int
	DefaultRefreshValiditySeconds int
}

// CreateAccessToken mints an access token for the given authorization
// context. A refresh token is minted alongside it only when the client
// allows refresh and the granted scope carries offline_access; the
// authorization snapshot is persisted either way.
func (s *TokenService) CreateAccessToken(ctx context.Context, auth *domain.Authentication) (domain.AccessToken, error) {
	now := clockx.OrNow(s.Clock)
	l := slogx.FromContext(ctx)

	if auth == nil || auth.ClientID == "" {
		return domain.AccessToken{}, ErrMissingCredentials
	}

	client, err := s.Store.Clients().GetClientByID(ctx, auth.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AccessToken{}, ErrUnknownClient
		}
		return domain.AccessToken{}, err
	}

	// 1. Snapshot the authorization context. Refresh resolves tokens back
	// to this record, and it is kept even when no refresh token is minted.
	holder := auth.Snapshot(idx.New().String())

	// 2. Mint the refresh token when the grant is eligible.
	var refresh *domain.RefreshToken
	if client.AllowRefresh && containsScope(auth.Scope, domain.ScopeOfflineAccess) {
		value, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return domain.AccessToken{}, err
		}

		refresh = &domain.RefreshToken{
			ID:        idx.New().String(),
			Value:     value,
			ClientID:  client.ID,
			HolderID:  holder.ID,
			ExpiresAt: expiryAt(now, client.RefreshTokenValiditySeconds, s.DefaultRefreshValiditySeconds),
		}
	}

	value, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.AccessToken{}, err
	}

	token := domain.AccessToken{
		ID:        idx.New().String(),
		Value:     value,
		ClientID:  client.ID,
		HolderID:  holder.ID,
		Scope:     copyScope(auth.Scope),
		ExpiresAt: expiryAt(now, client.AccessTokenValiditySeconds, s.DefaultAccessValiditySeconds),
	}
	if refresh != nil {
		token.RefreshTokenID = refresh.ID
		token.RefreshToken = refresh
	}

	// 3. Enhancement runs before persistence so hooks see the final shape
	// of the token and any claims they add are stored with it.
	if s.Enhancer != nil {
		if err := s.Enhancer.Enhance(ctx, &token, auth); err != nil {
			return domain.AccessToken{}, err
		}
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AuthenticationHolders().SaveAuthenticationHolder(ctx, holder); err != nil {
			return err
		}
		if refresh != nil {
			if err := tx.RefreshTokens().SaveRefreshToken(ctx, *refresh); err != nil {
				return err
			}
		}
		return tx.AccessTokens().SaveAccessToken(ctx, token)
	})
	if err != nil {
		return domain.AccessToken{}, err
	}

	l.Info("access token issued",
		slog.String("client_id", client.ID),
		slog.Bool("with_refresh", refresh != nil))

	return token, nil
}

// RefreshAccessToken exchanges a refresh-token value for a new access token.
// Prior access tokens bound to the refresh token are cleared, so at most one
// access token per refresh token is live at a time.
//
// Scope narrowing: an empty requested scope keeps the originally granted
// scope, a request that is not a subset of the grant is silently ignored in
// favour of the grant, and a non-empty subset is honoured exactly. Upscoping
// never fails, it is downgraded.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshValue string, requested []string) (domain.AccessToken, error) {
	now := clockx.OrNow(s.Clock)
	l := slogx.FromContext(ctx)

	refreshValue = strings.TrimSpace(refreshValue)
	if refreshValue == "" {
		return domain.AccessToken{}, ErrInvalidToken
	}

	refresh, err := s.Store.RefreshTokens().GetRefreshTokenByValue(ctx, refreshValue)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AccessToken{}, ErrInvalidToken
		}
		return domain.AccessToken{}, err
	}

	client, err := s.Store.Clients().GetClientByID(ctx, refresh.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AccessToken{}, ErrInvalidClient
		}
		return domain.AccessToken{}, err
	}
	if !client.AllowRefresh {
		return domain.AccessToken{}, ErrInvalidClient
	}

	if refresh.Expired(now) {
		l.Info("refresh rejected, token expired", slog.String("client_id", client.ID))
		return domain.AccessToken{}, ErrInvalidToken
	}

	holder, err := s.Store.AuthenticationHolders().GetAuthenticationHolderByID(ctx, refresh.HolderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AccessToken{}, ErrInvalidToken
		}
		return domain.AccessToken{}, err
	}

	scope := negotiateScope(holder.Scope, requested)

	value, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.AccessToken{}, err
	}

	token := domain.AccessToken{
		ID:             idx.New().String(),
		Value:          value,
		ClientID:       client.ID,
		HolderID:       holder.ID,
		Scope:          scope,
		ExpiresAt:      expiryAt(now, client.AccessTokenValiditySeconds, s.DefaultAccessValiditySeconds),
		RefreshTokenID: refresh.ID,
		RefreshToken:   &refresh,
	}

	// The hook sees the original authorization context, not the narrowed
	// refresh request.
	if s.Enhancer != nil {
		stored := &domain.Authentication{
			ClientID: holder.ClientID,
			Subject:  holder.Subject,
			Scope:    copyScope(holder.Scope),
		}
		if err := s.Enhancer.Enhance(ctx, &token, stored); err != nil {
			return domain.AccessToken{}, err
		}
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AccessTokens().ClearAccessTokensForRefreshToken(ctx, refresh.ID); err != nil {
			return err
		}
		return tx.AccessTokens().SaveAccessToken(ctx, token)
	})
	if err != nil {
		return domain.AccessToken{}, err
	}

	l.Info("access token refreshed",
		slog.String("client_id", client.ID),
		slog.Int("scope_count", len(scope)))

	return token, nil
}

// AuthenticateClient verifies a client id and secret pair. Clients without a
// stored secret are public and authenticate with an empty secret.
func (s *TokenService) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (domain.Client, error) {
	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}

	if client.SecretHash != "" {
		if clientSecret == "" || cryptox.VerifySecret(clientSecret, client.SecretHash) != nil {
			slogx.FromContext(ctx).Info("client authentication failed", slog.String("client_id", clientID))
			return domain.Client{}, ErrInvalidClient
		}
	}

	return client, nil
}

// RevokeAccessToken deletes a token by value. Unknown values are a no-op.
func (s *TokenService) RevokeAccessToken(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return s.Store.AccessTokens().DeleteAccessTokenByValue(ctx, value)
}

// ReadAccessToken resolves an access-token value to its stored record,
// rejecting expired tokens.
func (s *TokenService) ReadAccessToken(ctx context.Context, value string) (domain.AccessToken, error) {
	now := clockx.OrNow(s.Clock)

	token, err := s.Store.AccessTokens().GetAccessTokenByValue(ctx, value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AccessToken{}, ErrInvalidToken
		}
		return domain.AccessToken{}, err
	}
	if token.Expired(now) {
		return domain.AccessToken{}, ErrInvalidToken
	}

	return token, nil
}

// IntrospectAccessToken resolves a live token value together with the
// authorization snapshot it was minted under.
func (s *TokenService) IntrospectAccessToken(ctx context.Context, value string) (domain.AccessToken, domain.AuthenticationHolder, error) {
	token, err := s.ReadAccessToken(ctx, value)
	if err != nil {
		return domain.AccessToken{}, domain.AuthenticationHolder{}, err
	}

	holder, err := s.Store.AuthenticationHolders().GetAuthenticationHolderByID(ctx, token.HolderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AccessToken{}, domain.AuthenticationHolder{}, ErrInvalidToken
		}
		return domain.AccessToken{}, domain.AuthenticationHolder{}, err
	}

	return token, holder, nil
}

// expiryAt computes now + the client's validity, falling back to the system
// default when the client defines none. Zero or negative validity means the
// token never expires.
func expiryAt(now time.Time, clientValidity *int, fallback int) *time.Time {
	validity := fallback
	if clientValidity != nil {
		validity = *clientValidity
	}
	if validity <= 0 {
		return nil
	}
	at := now.Add(time.Duration(validity) * time.Second)
	return &at
}

func negotiateScope(stored, requested []string) []string {
	if len(requested) == 0 || !subsetOf(requested, stored) {
		return copyScope(stored)
	}
	return copyScope(requested)
}

func subsetOf(sub, super []string) bool {
	for _, s := range sub {
		if !containsScope(super, s) {
			return false
		}
	}
	return true
}

func containsScope(scope []string, want string) bool {
	for _, s := range scope {
		if s == want {
			return true
		}
	}
	return false
}

func copyScope(scope []string) []string {
	out := make([]string, len(scope))
	copy(out, scope)
	return out
}
