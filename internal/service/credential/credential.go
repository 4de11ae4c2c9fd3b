package credential

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
	"github.com/nkiryanov/authgate/internal/service/auth"
)

// Token lifecycle operations the credential flows need
type TokenLifecycle interface {
	IssueAppPair(ctx context.Context, credential models.Credential) (models.TokenPair, error)
	IssueVerifyPair(ctx context.Context, credential models.Credential) (models.TokenPair, error)
	IssueChangePasswordToken(ctx context.Context, credential models.Credential) (models.IssuedToken, error)
	RevokeByTokenID(ctx context.Context, tokenID uuid.UUID) error
	RevokeByOwner(ctx context.Context, credentialID uuid.UUID, purpose models.TokenPurpose) error
	ConsumeAndPromote(ctx context.Context, verifyTokenID uuid.UUID) (models.Credential, models.TokenPair, error)
	MintErrorToken() (models.IssuedToken, error)
}

// Notifier delivers issuance side effects. Called only after tokens are
// persisted, never on the validation path
type Notifier interface {
	SendVerification(ctx context.Context, email string, pair models.TokenPair) error
	SendRecovery(ctx context.Context, email string, token models.IssuedToken) error
}

// Service implements sign-up, account verification, recovery and password
// change on top of the token lifecycle
type Service struct {
	storage   repository.Storage
	lifecycle TokenLifecycle
	hasher    auth.PasswordHasher
	notifier  Notifier
	logger    logger.Logger
}

func NewService(storage repository.Storage, lifecycle TokenLifecycle, hasher auth.PasswordHasher, notifier Notifier, l logger.Logger) (*Service, error) {
	if storage == nil || lifecycle == nil || notifier == nil {
		return nil, errors.New("storage, lifecycle and notifier must not be nil")
	}

	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		storage:   storage,
		lifecycle: lifecycle,
		hasher:    hasher,
		notifier:  notifier,
		logger:    l,
	}, nil
}

// SignUp creates an unverified credential, issues the verify pair and mails
// the verification link
func (s *Service) SignUp(ctx context.Context, name string, email string, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	credential, err := s.storage.Credential().Create(ctx, models.Credential{
		Name:           name,
		Email:          email,
		HashedPassword: hash,
	})
	if err != nil {
		return err
	}

	pair, err := s.lifecycle.IssueVerifyPair(ctx, credential)
	if err != nil {
		return err
	}

	s.sendVerification(ctx, credential.Email, pair)
	return nil
}

// VerifyAccount consumes the verify token and promotes the credential to a
// signed-in state. Reusing a consumed token fails with ErrTokenRecordNotFound
func (s *Service) VerifyAccount(ctx context.Context, verifyTokenID uuid.UUID) (models.TokenPair, error) {
	_, pair, err := s.lifecycle.ConsumeAndPromote(ctx, verifyTokenID)
	return pair, err
}

// RefreshVerifyAccess issues a fresh verify token for a credential whose
// verification link expired. The refresh-verify token authenticated the
// caller; the single-active guard throttles repeated requests
func (s *Service) RefreshVerifyAccess(ctx context.Context, credentialID uuid.UUID) error {
	credential, err := s.storage.Credential().GetByID(ctx, credentialID)
	if err != nil {
		return err
	}

	pair, err := s.lifecycle.IssueVerifyPair(ctx, credential)
	if err != nil {
		return err
	}

	s.sendVerification(ctx, credential.Email, pair)
	return nil
}

// RecoverAccount issues a change-password token and mails the recovery link.
// ErrActiveTokenExists means instructions were already sent and is surfaced
// as an informational condition, not a hard failure
func (s *Service) RecoverAccount(ctx context.Context, email string) error {
	credential, err := s.storage.Credential().GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	if credential.IsFederated {
		return apperrors.ErrFederatedOnly
	}
	if !credential.IsVerified {
		return apperrors.ErrCredentialNotVerified
	}

	token, err := s.lifecycle.IssueChangePasswordToken(ctx, credential)
	if err != nil {
		return err
	}

	// Fire and forget, email delivery never blocks the response
	go func(ctx context.Context) {
		if err := s.notifier.SendRecovery(ctx, credential.Email, token); err != nil {
			s.logger.Error("failed to send recovery email", "email", credential.Email, "error", err.Error())
		}
	}(context.WithoutCancel(ctx))

	return nil
}

// ChangePassword burns the change-password token, stores the new hash and
// drops any app session opened under the old password
func (s *Service) ChangePassword(ctx context.Context, changeTokenID uuid.UUID, password string) error {
	record, err := s.storage.AccessToken().GetByTokenID(ctx, changeTokenID)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		if err := tx.AccessToken().Delete(ctx, changeTokenID); err != nil {
			return err
		}
		return tx.Credential().SetPassword(ctx, record.CredentialID, hash)
	})
	if err != nil {
		return err
	}

	return s.lifecycle.RevokeByOwner(ctx, record.CredentialID, models.PurposeAccessApp)
}

// OAuthLogin is the post-handshake hook: first federated login creates a
// verified credential, repeat logins must still be federated, both end with a
// fresh app pair
func (s *Service) OAuthLogin(ctx context.Context, name string, email string) (models.TokenPair, error) {
	var pair models.TokenPair

	credential, err := s.storage.Credential().GetByEmail(ctx, email)

	switch {
	case errors.Is(err, apperrors.ErrCredentialNotFound):
		credential, err = s.storage.Credential().Create(ctx, models.Credential{
			Name:        name,
			Email:       email,
			IsFederated: true,
			IsVerified:  true,
		})
		if err != nil {
			return pair, err
		}
	case err != nil:
		return pair, err
	case !credential.IsFederated:
		// password account exists for this email, don't hijack it
		return pair, apperrors.ErrFederatedOnly
	}

	return s.lifecycle.IssueAppPair(ctx, credential)
}

// OAuthErrorToken mints the short-lived token the failure redirect carries
func (s *Service) OAuthErrorToken() (models.IssuedToken, error) {
	return s.lifecycle.MintErrorToken()
}

func (s *Service) sendVerification(ctx context.Context, email string, pair models.TokenPair) {
	go func(ctx context.Context) {
		if err := s.notifier.SendVerification(ctx, email, pair); err != nil {
			s.logger.Error("failed to send verification email", "email", email, "error", err.Error())
		}
	}(context.WithoutCancel(ctx))
}
