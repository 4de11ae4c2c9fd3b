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

type CredentialRepo struct {
	DB DBTX
}

const createCredential = `-- name: CreateCredential
INSERT INTO credentials (id, name, email, password_hash, is_federated, is_verified)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
RETURNING id, created_at, name, email, COALESCE(password_hash, ''), is_federated, is_verified
`

func (r *CredentialRepo) Create(ctx context.Context, credential models.Credential) (models.Credential, error) {
	if credential.ID == uuid.Nil {
		credential.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createCredential,
		credential.ID,
		credential.Name,
		credential.Email,
		credential.HashedPassword,
		credential.IsFederated,
		credential.IsVerified,
	)
	created, err := pgx.CollectOneRow(rows, rowToCredential)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrCredentialExists
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getCredentialByID = `-- name: GetCredentialByID
SELECT id, created_at, name, email, COALESCE(password_hash, ''), is_federated, is_verified
FROM credentials
WHERE id = $1
`

func (r *CredentialRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Credential, error) {
	rows, _ := r.DB.Query(ctx, getCredentialByID, id)
	return collectCredential(rows)
}

const getCredentialByEmail = `-- name: GetCredentialByEmail
SELECT id, created_at, name, email, COALESCE(password_hash, ''), is_federated, is_verified
FROM credentials
WHERE email = $1
`

func (r *CredentialRepo) GetByEmail(ctx context.Context, email string) (models.Credential, error) {
	rows, _ := r.DB.Query(ctx, getCredentialByEmail, email)
	return collectCredential(rows)
}

const setVerified = `-- name: SetVerified
UPDATE credentials
SET is_verified = $2
WHERE id = $1
`

func (r *CredentialRepo) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	tag, err := r.DB.Exec(ctx, setVerified, id, verified)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrCredentialNotFound
	}
	return nil
}

const setPassword = `-- name: SetPassword
UPDATE credentials
SET password_hash = $2
WHERE id = $1
`

func (r *CredentialRepo) SetPassword(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	tag, err := r.DB.Exec(ctx, setPassword, id, hashedPassword)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrCredentialNotFound
	}
	return nil
}

func collectCredential(rows pgx.Rows) (models.Credential, error) {
	credential, err := pgx.CollectOneRow(rows, rowToCredential)

	switch {
	case err == nil:
		return credential, nil
	case errors.Is(err, pgx.ErrNoRows):
		return credential, apperrors.ErrCredentialNotFound
	default:
		return credential, fmt.Errorf("db error: %w", err)
	}
}

func rowToCredential(row pgx.CollectableRow) (models.Credential, error) {
	var c models.Credential
	err := row.Scan(&c.ID, &c.CreatedAt, &c.Name, &c.Email, &c.HashedPassword, &c.IsFederated, &c.IsVerified)
	return c, err
}
