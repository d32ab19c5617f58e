package domain

import "time"

// Client is a registered OAuth2 client. Read-only to the token service.
type Client struct {
	ID         string
	Name       string
	SecretHash string // argon2id; empty for public clients

	// AllowRefresh gates whether this client may ever receive refresh
	// tokens.
	AllowRefresh bool

	// Token validity in seconds. nil falls back to the system default;
	// zero or negative means tokens for this client never expire.
	AccessTokenValiditySeconds  *int
	RefreshTokenValiditySeconds *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BootstrapData describes the first client registered on a fresh install.
type BootstrapData struct {
	ClientName   string
	AllowRefresh bool

	AccessTokenValiditySeconds  *int
	RefreshTokenValiditySeconds *int
}
