package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

type AccessTokenRepo struct {
	DB DBTX
}

const saveAccessToken = `-- name: SaveAccessToken
INSERT INTO access_tokens (id, token_id, credential_id, purpose, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, token_id, credential_id, purpose, created_at, expires_at
`

func (r *AccessTokenRepo) Save(ctx context.Context, token models.AccessToken) (models.AccessToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, saveAccessToken,
		token.ID, token.TokenID, token.CredentialID, token.Purpose, token.CreatedAt, token.ExpiresAt,
	)
	saved, err := pgx.CollectOneRow(rows, rowToAccessToken)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// unique (credential_id, purpose) is the backstop for the
			// single-active-token invariant under concurrent issuance
			return saved, apperrors.ErrActiveTokenExists
		}

		return saved, fmt.Errorf("db error: %w", err)
	}

	return saved, nil
}

const getAccessByTokenID = `-- name: GetAccessByTokenID
SELECT id, token_id, credential_id, purpose, created_at, expires_at
FROM access_tokens
WHERE token_id = $1
`

func (r *AccessTokenRepo) GetByTokenID(ctx context.Context, tokenID uuid.UUID) (models.AccessToken, error) {
	rows, _ := r.DB.Query(ctx, getAccessByTokenID, tokenID)
	return collectAccessToken(rows)
}

const getAccessByOwnerAndPurpose = `-- name: GetAccessByOwnerAndPurpose
SELECT id, token_id, credential_id, purpose, created_at, expires_at
FROM access_tokens
WHERE credential_id = $1 AND purpose = $2
`

func (r *AccessTokenRepo) GetByOwnerAndPurpose(ctx context.Context, credentialID uuid.UUID, purpose models.TokenPurpose) (models.AccessToken, error) {
	rows, _ := r.DB.Query(ctx, getAccessByOwnerAndPurpose, credentialID, purpose)
	return collectAccessToken(rows)
}

const rotateAccessToken = `-- name: RotateAccessToken
UPDATE access_tokens
SET token_id = $2, created_at = $3, expires_at = $4
WHERE id = $1
RETURNING id, token_id, credential_id, purpose, created_at, expires_at
`

// Rotate replaces the signed envelope the row represents, keeping the row
// itself (and everything referencing it) in place
func (r *AccessTokenRepo) Rotate(ctx context.Context, id uuid.UUID, rotated models.AccessToken) (models.AccessToken, error) {
	rows, _ := r.DB.Query(ctx, rotateAccessToken, id, rotated.TokenID, rotated.CreatedAt, rotated.ExpiresAt)
	return collectAccessToken(rows)
}

const deleteAccessToken = `-- name: DeleteAccessToken
DELETE FROM access_tokens
WHERE token_id = $1
`

func (r *AccessTokenRepo) Delete(ctx context.Context, tokenID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, deleteAccessToken, tokenID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteAccessByOwnerAndPurpose = `-- name: DeleteAccessByOwnerAndPurpose
DELETE FROM access_tokens
WHERE credential_id = $1 AND purpose = $2
`

func (r *AccessTokenRepo) DeleteByOwnerAndPurpose(ctx context.Context, credentialID uuid.UUID, purpose models.TokenPurpose) error {
	_, err := r.DB.Exec(ctx, deleteAccessByOwnerAndPurpose, credentialID, purpose)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func collectAccessToken(rows pgx.Rows) (models.AccessToken, error) {
	token, err := pgx.CollectOneRow(rows, rowToAccessToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenRecordNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

func rowToAccessToken(row pgx.CollectableRow) (models.AccessToken, error) {
	var t models.AccessToken
	err := row.Scan(&t.ID, &t.TokenID, &t.CredentialID, &t.Purpose, &t.CreatedAt, &t.ExpiresAt)
	return t, err
}
