package store

import (
	"context"
	"errors"

	"github.com/openfedid/fedid/internal/idp/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement it;
// the token service only ever sees these interfaces. Lookups by token value
// go through the value's fingerprint, so drivers can index hashes instead of
// raw credentials.
type Store interface {
	Clients() Clients
	AccessTokens() AccessTokens
	RefreshTokens() RefreshTokens
	AuthenticationHolders() AuthenticationHolders

	ApplyMigrations() error

	// WithTx executes fn within a transaction, rolling back when fn returns
	// an error and committing otherwise. Use it for multi-step operations
	// that must be atomic, such as clear-then-save on refresh.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Tx starts a transaction the caller must Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Clients interface {
	// GetClientByID resolves a client by its public identifier.
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// CreateClient inserts a new client registration.
	CreateClient(ctx context.Context, c domain.Client) error

	// IsEmpty reports whether any clients exist.
	IsEmpty(ctx context.Context) (bool, error)
}

type AccessTokens interface {
	// SaveAccessToken persists a freshly minted access token.
	SaveAccessToken(ctx context.Context, t domain.AccessToken) error

	// GetAccessTokenByValue looks a token up by its opaque value.
	GetAccessTokenByValue(ctx context.Context, value string) (domain.AccessToken, error)

	// DeleteAccessTokenByValue revokes a token. Missing tokens are not an
	// error; revocation is idempotent.
	DeleteAccessTokenByValue(ctx context.Context, value string) error

	// ClearAccessTokensForRefreshToken removes every access token bound to
	// the given refresh token id.
	ClearAccessTokensForRefreshToken(ctx context.Context, refreshTokenID string) error

	// DeleteExpiredAccessTokens is housekeeping for tokens past expiry.
	DeleteExpiredAccessTokens(ctx context.Context) error
}

type RefreshTokens interface {
	// SaveRefreshToken persists a freshly minted refresh token.
	SaveRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByValue looks a refresh token up by its opaque value.
	GetRefreshTokenByValue(ctx context.Context, value string) (domain.RefreshToken, error)

	// DeleteExpiredRefreshTokens is housekeeping for tokens past expiry.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}

type AuthenticationHolders interface {
	// SaveAuthenticationHolder persists an authorization-context snapshot.
	SaveAuthenticationHolder(ctx context.Context, h domain.AuthenticationHolder) error

	// GetAuthenticationHolderByID fetches a snapshot by id.
	GetAuthenticationHolderByID(ctx context.Context, id string) (domain.AuthenticationHolder, error)
}
