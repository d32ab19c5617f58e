package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/openfedid/fedid/internal/idp/domain"
	"github.com/openfedid/fedid/pkg/cryptox"
)

type accessTokensRepo struct {
	db querier
}

func (r *accessTokensRepo) SaveAccessToken(ctx context.Context, t domain.AccessToken) error {
	claims := []byte("{}")
	if len(t.Claims) > 0 {
		encoded, err := json.Marshal(t.Claims)
		if err != nil {
			return err
		}
		claims = encoded
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_tokens (id, value_hash, client_id, holder_id,
		                           refresh_token_id, scope, claims, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, cryptox.FingerprintToken(t.Value), t.ClientID, t.HolderID,
		mapStringNull(t.RefreshTokenID), strings.Join(t.Scope, " "),
		string(claims), mapOptionalTime(t.ExpiresAt),
	)
	return err
}

func (r *accessTokensRepo) GetAccessTokenByValue(
	ctx context.Context,
	value string,
) (domain.AccessToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, holder_id, refresh_token_id, scope, claims,
		       expires_at, created_at
		FROM access_tokens WHERE value_hash = ?`,
		cryptox.FingerprintToken(value))

	var t domain.AccessToken
	var refreshID sql.NullString
	var scope, claims string
	var expiresAt sql.NullTime
	if err := row.Scan(
		&t.ID, &t.ClientID, &t.HolderID, &refreshID, &scope, &claims,
		&expiresAt, &t.CreatedAt,
	); err != nil {
		return domain.AccessToken{}, mapNotFound(err)
	}

	t.Value = value
	t.RefreshTokenID = mapNullString(refreshID)
	t.Scope = splitScope(scope)
	t.ExpiresAt = mapNullTimePtr(expiresAt)
	if claims != "" && claims != "{}" {
		if err := json.Unmarshal([]byte(claims), &t.Claims); err != nil {
			return domain.AccessToken{}, err
		}
	}
	return t, nil
}

func (r *accessTokensRepo) DeleteAccessTokenByValue(ctx context.Context, value string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE value_hash = ?`,
		cryptox.FingerprintToken(value))
	return err
}

func (r *accessTokensRepo) ClearAccessTokensForRefreshToken(
	ctx context.Context,
	refreshTokenID string,
) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE refresh_token_id = ?`, refreshTokenID)
	return err
}

func (r *accessTokensRepo) DeleteExpiredAccessTokens(ctx context.Context) error {
	// Bind the cutoff from Go so the comparison uses the same time encoding
	// the driver wrote.
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now())
	return err
}

func splitScope(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
