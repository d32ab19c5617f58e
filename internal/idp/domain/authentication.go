package domain

// Authentication is the authorization context presented when a token is
// minted: which client asked, for whom, and with what scope. It is the
// in-memory counterpart of an AuthenticationHolder.
type Authentication struct {
	ClientID string
	Subject  string
	Scope    []string
}

// Snapshot copies the authentication into a holder record ready to persist.
func (a *Authentication) Snapshot(id string) AuthenticationHolder {
	scope := make([]string, len(a.Scope))
	copy(scope, a.Scope)

	return AuthenticationHolder{
		ID:       id,
		ClientID: a.ClientID,
		Subject:  a.Subject,
		Scope:    scope,
	}
}
