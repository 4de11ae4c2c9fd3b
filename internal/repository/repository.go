package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/nkiryanov/authgate/internal/models"
)

// Credential repository interface
type CredentialRepo interface {
	// Create credential
	// If credential with email exists already has to return apperrors.ErrCredentialExists
	Create(ctx context.Context, credential models.Credential) (models.Credential, error)

	// Get credential by its id or email
	// If credential not found must return apperrors.ErrCredentialNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Credential, error)
	GetByEmail(ctx context.Context, email string) (models.Credential, error)

	// SetVerified flips the is_verified flag
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error

	// SetPassword stores a new password hash
	SetPassword(ctx context.Context, id uuid.UUID, hashedPassword string) error
}

// AccessToken repository interface
type AccessTokenRepo interface {
	// Save token record
	// If a record for (credential, purpose) exists already has to return
	// apperrors.ErrActiveTokenExists (schema-level backstop)
	Save(ctx context.Context, token models.AccessToken) (models.AccessToken, error)

	// Get record by the envelope's jti
	// If not found must return apperrors.ErrTokenRecordNotFound
	GetByTokenID(ctx context.Context, tokenID uuid.UUID) (models.AccessToken, error)

	// Get record for (credential, purpose)
	// If not found must return apperrors.ErrTokenRecordNotFound
	GetByOwnerAndPurpose(ctx context.Context, credentialID uuid.UUID, purpose models.TokenPurpose) (models.AccessToken, error)

	// Rotate overwrites token_id, created_at and expires_at of the row with
	// the given id in place, row identity (and the paired refresh link) is
	// preserved. If the row is absent must return apperrors.ErrTokenRecordNotFound
	Rotate(ctx context.Context, id uuid.UUID, rotated models.AccessToken) (models.AccessToken, error)

	// Delete record by jti. Deleting an absent record is a no-op
	Delete(ctx context.Context, tokenID uuid.UUID) error

	// DeleteByOwnerAndPurpose removes the record for (credential, purpose), no-op if absent
	DeleteByOwnerAndPurpose(ctx context.Context, credentialID uuid.UUID, purpose models.TokenPurpose) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token record linked one-to-one to an access record
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Get record by the envelope's jti
	// If not found must return apperrors.ErrTokenRecordNotFound
	GetByTokenID(ctx context.Context, tokenID uuid.UUID) (models.RefreshToken, error)

	// Delete the record paired with the given access record, no-op if absent
	DeleteByAccessTokenID(ctx context.Context, accessTokenID uuid.UUID) error
}

// Storage aggregates repositories on a shared connection or transaction
type Storage interface {
	Credential() CredentialRepo
	AccessToken() AccessTokenRepo
	RefreshToken() RefreshTokenRepo

	// InTx runs fn against a storage bound to a single transaction.
	// Rolls back if fn returns an error
	InTx(ctx context.Context, fn func(Storage) error) error
}
