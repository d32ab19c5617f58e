package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openfedid/fedid/internal/idp/domain"
	"github.com/openfedid/fedid/internal/idp/store"
	"github.com/openfedid/fedid/pkg/cryptox"
	"github.com/openfedid/fedid/pkg/idx"
	"github.com/openfedid/fedid/pkg/slogx"
)

var (
	ErrBootstrapAlready              = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized         = errors.New("unauthorized bootstrap attempt")
	ErrBootstrapFailedToCreateClient = errors.New("failed to create client")
)

// BootstrapService seeds the first OAuth2 client on a fresh install. It is
// enabled only when a token is configured and refuses to run once any client
// exists.
type BootstrapService struct {
	Store store.Store
	Token string // Pre-configured bootstrap token
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Clients().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Bootstrap registers the initial confidential client and returns its id and
// the generated secret. The secret is never stored in the clear, so this is
// the only time it is visible.
func (s *BootstrapService) Bootstrap(
	ctx context.Context,
	token string,
	req domain.BootstrapData,
) (string, string, error) {
	l := slogx.FromContext(ctx)

	// 1. Check if already bootstrapped
	if bootstrapped, _ := s.IsBootstrapped(ctx); bootstrapped {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return "", "", ErrBootstrapAlready
	}

	// 2. Validate provided token
	if token != s.Token {
		l.Warn("unauthorized bootstrap attempt")
		return "", "", ErrBootstrapUnauthorized
	}

	// 3. Generate and hash the client secret
	clientSecret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		l.Error("failed to generate client secret", slog.Any("error", err))
		return "", "", ErrBootstrapFailedToCreateClient
	}

	secretHash, err := cryptox.HashSecret(clientSecret)
	if err != nil {
		l.Error("failed to hash client secret", slog.Any("error", err))
		return "", "", ErrBootstrapFailedToCreateClient
	}

	// 4. Create the client
	clientID := idx.New().String()
	err = s.Store.Clients().CreateClient(ctx, domain.Client{
		ID:                          clientID,
		Name:                        req.ClientName,
		SecretHash:                  secretHash,
		AllowRefresh:                req.AllowRefresh,
		AccessTokenValiditySeconds:  req.AccessTokenValiditySeconds,
		RefreshTokenValiditySeconds: req.RefreshTokenValiditySeconds,
	})
	if err != nil {
		l.Error("failed to create client",
			slog.String("client_id", clientID),
			slog.Any("error", err),
		)
		return "", "", ErrBootstrapFailedToCreateClient
	}

	l.Info("successfully bootstrapped system", slog.String("client_id", clientID))
	return clientID, clientSecret, nil
}
