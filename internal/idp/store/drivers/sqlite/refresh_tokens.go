package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/openfedid/fedid/internal/idp/domain"
	"github.com/openfedid/fedid/pkg/cryptox"
)

type refreshTokensRepo struct {
	db querier
}

func (r *refreshTokensRepo) SaveRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, value_hash, client_id, holder_id, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, cryptox.FingerprintToken(t.Value), t.ClientID, t.HolderID,
		mapOptionalTime(t.ExpiresAt),
	)
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByValue(
	ctx context.Context,
	value string,
) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, holder_id, expires_at, created_at
		FROM refresh_tokens WHERE value_hash = ?`,
		cryptox.FingerprintToken(value))

	var t domain.RefreshToken
	var expiresAt sql.NullTime
	if err := row.Scan(&t.ID, &t.ClientID, &t.HolderID, &expiresAt, &t.CreatedAt); err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}

	t.Value = value
	t.ExpiresAt = mapNullTimePtr(expiresAt)
	return t, nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now())
	return err
}
