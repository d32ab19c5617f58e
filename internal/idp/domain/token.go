package domain

import "time"

// ScopeOfflineAccess is the scope marker whose presence makes a grant
// eligible for a refresh token.
const ScopeOfflineAccess = "offline_access"

// AccessToken is an issued bearer credential. The value is opaque; nothing
// about it is derivable without the store. Immutable once persisted, except
// for revocation (deletion).
type AccessToken struct {
	ID       string
	Value    string
	ClientID string

	// HolderID names the AuthenticationHolder snapshot this token was
	// minted under.
	HolderID string

	Scope     []string
	ExpiresAt *time.Time // nil = non-expiring

	// RefreshTokenID links the refresh token minted alongside this access
	// token, when the grant was refresh-eligible.
	RefreshTokenID string

	// RefreshToken carries the linked refresh token, value included. It is
	// populated on issuance only; store lookups return RefreshTokenID alone
	// because raw values are never persisted.
	RefreshToken *RefreshToken

	// Claims carries any additional claims attached by an enhancement hook.
	Claims map[string]any

	CreatedAt time.Time
}

// Expired reports whether the token's expiry has passed at instant now.
// Non-expiring tokens never expire.
func (t AccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// RefreshToken is the long-lived credential used to mint replacement access
// tokens. It references the AuthenticationHolder captured at grant time and
// may outlive many access tokens. Never mutated after creation.
type RefreshToken struct {
	ID        string
	Value     string
	ClientID  string
	HolderID  string
	ExpiresAt *time.Time // nil = non-expiring
	CreatedAt time.Time
}

// Expired reports whether the refresh token's expiry has passed at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// AuthenticationHolder is the persisted snapshot of the authorization
// context at the moment a grant was issued. Refresh looks it up and never
// mutates it.
type AuthenticationHolder struct {
	ID        string
	ClientID  string
	Subject   string
	Scope     []string
	CreatedAt time.Time
}
