package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
)

// Service handles password sign-in and the session-shaped operations on the
// app token pair
type Service struct {
	lifecycle *Lifecycle
	hasher    PasswordHasher
	storage   repository.Storage
}

func NewService(lifecycle *Lifecycle, hasher PasswordHasher, storage repository.Storage) (*Service, error) {
	if lifecycle == nil || storage == nil {
		return nil, errors.New("lifecycle and storage must not be nil")
	}

	// Default bcrypt hasher if not provided
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	return &Service{
		lifecycle: lifecycle,
		hasher:    hasher,
		storage:   storage,
	}, nil
}

// SignIn checks the password and issues the app pair, replacing whatever app
// pair the credential held before
func (s *Service) SignIn(ctx context.Context, email string, password string) (models.TokenPair, error) {
	var pair models.TokenPair

	credential, err := s.storage.Credential().GetByEmail(ctx, email)
	if err != nil {
		return pair, err
	}

	if credential.IsFederated {
		return pair, apperrors.ErrFederatedOnly
	}

	if !credential.IsVerified {
		return pair, apperrors.ErrCredentialNotVerified
	}

	if err := s.hasher.Compare(credential.HashedPassword, password); err != nil {
		return pair, apperrors.ErrPasswordIncorrect
	}

	return s.lifecycle.IssueAppPair(ctx, credential)
}

// Rotate exchanges a refresh token for a fresh access token.
// The refresh token itself stays usable
func (s *Service) Rotate(ctx context.Context, refreshToken string) (models.IssuedToken, error) {
	return s.lifecycle.RotateAppAccess(ctx, refreshToken)
}

// SignOut burns the presented access token's record and its paired refresh
func (s *Service) SignOut(ctx context.Context, accessTokenID uuid.UUID) error {
	return s.lifecycle.RevokeByTokenID(ctx, accessTokenID)
}
