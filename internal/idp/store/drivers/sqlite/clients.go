package sqlite

import (
	"context"
	"database/sql"

	"github.com/openfedid/fedid/internal/idp/domain"
)

type clientsRepo struct {
	db querier
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, secret_hash, allow_refresh,
		       access_validity_seconds, refresh_validity_seconds,
		       created_at, updated_at
		FROM clients WHERE id = ?`, id)

	var c domain.Client
	var accessValidity, refreshValidity sql.NullInt64
	if err := row.Scan(
		&c.ID, &c.Name, &c.SecretHash, &c.AllowRefresh,
		&accessValidity, &refreshValidity,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	c.AccessTokenValiditySeconds = mapNullIntPtr(accessValidity)
	c.RefreshTokenValiditySeconds = mapNullIntPtr(refreshValidity)
	return c, nil
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, secret_hash, allow_refresh,
		                     access_validity_seconds, refresh_validity_seconds)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.SecretHash, c.AllowRefresh,
		mapOptionalInt(c.AccessTokenValiditySeconds),
		mapOptionalInt(c.RefreshTokenValiditySeconds),
	)
	return err
}

func (r *clientsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}
