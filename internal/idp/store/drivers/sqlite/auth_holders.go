package sqlite

import (
	"context"
	"strings"

	"github.com/openfedid/fedid/internal/idp/domain"
)

type authHoldersRepo struct {
	db querier
}

func (r *authHoldersRepo) SaveAuthenticationHolder(
	ctx context.Context,
	h domain.AuthenticationHolder,
) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_holders (id, client_id, subject, scope)
		VALUES (?, ?, ?, ?)`,
		h.ID, h.ClientID, h.Subject, strings.Join(h.Scope, " "),
	)
	return err
}

func (r *authHoldersRepo) GetAuthenticationHolderByID(
	ctx context.Context,
	id string,
) (domain.AuthenticationHolder, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, subject, scope, created_at
		FROM auth_holders WHERE id = ?`, id)

	var h domain.AuthenticationHolder
	var scope string
	if err := row.Scan(&h.ID, &h.ClientID, &h.Subject, &scope, &h.CreatedAt); err != nil {
		return domain.AuthenticationHolder{}, mapNotFound(err)
	}
	h.Scope = splitScope(scope)
	return h, nil
}
