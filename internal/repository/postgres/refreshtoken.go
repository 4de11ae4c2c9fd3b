package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const saveRefreshToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, token_id, credential_id, access_token_id, purpose, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, token_id, credential_id, access_token_id, purpose, created_at, expires_at
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, saveRefreshToken,
		token.ID, token.TokenID, token.CredentialID, token.AccessTokenID, token.Purpose, token.CreatedAt, token.ExpiresAt,
	)
	saved, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}

	return saved, nil
}

const getRefreshByTokenID = `-- name: GetRefreshByTokenID
SELECT id, token_id, credential_id, access_token_id, purpose, created_at, expires_at
FROM refresh_tokens
WHERE token_id = $1
`

func (r *RefreshTokenRepo) GetByTokenID(ctx context.Context, tokenID uuid.UUID) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getRefreshByTokenID, tokenID)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenRecordNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const deleteRefreshByAccessTokenID = `-- name: DeleteRefreshByAccessTokenID
DELETE FROM refresh_tokens
WHERE access_token_id = $1
`

func (r *RefreshTokenRepo) DeleteByAccessTokenID(ctx context.Context, accessTokenID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, deleteRefreshByAccessTokenID, accessTokenID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.TokenID, &t.CredentialID, &t.AccessTokenID, &t.Purpose, &t.CreatedAt, &t.ExpiresAt)
	return t, err
}
