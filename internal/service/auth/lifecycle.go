package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
)

// Default lifetimes per purpose
const (
	defaultAccessAppTTL     = 60 * time.Minute
	defaultRefreshAppTTL    = 7 * 24 * time.Hour
	defaultVerifyTTL        = 60 * time.Minute
	defaultRefreshVerifyTTL = 7 * 24 * time.Hour
	defaultChangePwdTTL     = 10 * time.Minute
	defaultOAuthErrorTTL    = 10 * time.Second
)

// Lifecycle config with sensible defaults
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// Issuer claim value
	// If not set than default is used
	Issuer string

	// Per purpose token lifetimes
	// If not set than default is used
	AccessAppTTL     time.Duration
	RefreshAppTTL    time.Duration
	VerifyTTL        time.Duration
	RefreshVerifyTTL time.Duration
	ChangePwdTTL     time.Duration
	OAuthErrorTTL    time.Duration
}

const defaultIssuer = "authgate"

// Lifecycle orchestrates minting, pairing, rotation, single-active-token
// enforcement and revocation. A token authorizes a request only when the
// envelope verifies, its purpose matches and a live persisted record
// still backs it.
type Lifecycle struct {
	codec   *Codec
	storage repository.Storage

	accessAppTTL     time.Duration
	refreshAppTTL    time.Duration
	verifyTTL        time.Duration
	refreshVerifyTTL time.Duration
	changePwdTTL     time.Duration
	oauthErrorTTL    time.Duration
}

func NewLifecycle(cfg Config, storage repository.Storage) (*Lifecycle, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}

	codec, err := NewCodec(cfg.SecretKey, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessAppTTL, defaultAccessAppTTL)
	setDefaultDuration(&cfg.RefreshAppTTL, defaultRefreshAppTTL)
	setDefaultDuration(&cfg.VerifyTTL, defaultVerifyTTL)
	setDefaultDuration(&cfg.RefreshVerifyTTL, defaultRefreshVerifyTTL)
	setDefaultDuration(&cfg.ChangePwdTTL, defaultChangePwdTTL)
	setDefaultDuration(&cfg.OAuthErrorTTL, defaultOAuthErrorTTL)

	return &Lifecycle{
		codec:            codec,
		storage:          storage,
		accessAppTTL:     cfg.AccessAppTTL,
		refreshAppTTL:    cfg.RefreshAppTTL,
		verifyTTL:        cfg.VerifyTTL,
		refreshVerifyTTL: cfg.RefreshVerifyTTL,
		changePwdTTL:     cfg.ChangePwdTTL,
		oauthErrorTTL:    cfg.OAuthErrorTTL,
	}, nil
}

// Codec exposes the envelope codec, mostly for tests
func (l *Lifecycle) Codec() *Codec {
	return l.codec
}

// IssueAppPair mints the ACCESS_APP + REFRESH_APP pair. A repeat sign-in
// overwrites the previous app access record in place instead of creating a
// parallel one, so a credential holds exactly one live app pair
func (l *Lifecycle) IssueAppPair(ctx context.Context, credential models.Credential) (models.TokenPair, error) {
	var pair models.TokenPair

	err := l.storage.InTx(ctx, func(s repository.Storage) error {
		var err error
		pair, err = l.issuePair(ctx, s, credential, models.PurposeAccessApp, l.accessAppTTL, models.PurposeRefreshApp, l.refreshAppTTL)
		return err
	})
	if err != nil {
		return pair, err
	}

	return pair, nil
}

// IssueVerifyPair mints the VERIFY_ACCOUNT + REFRESH_VERIFY_ACCOUNT pair.
// Fails with apperrors.ErrActiveTokenExists while a live verify token
// remains, deliberate anti-spam control on verification emails
func (l *Lifecycle) IssueVerifyPair(ctx context.Context, credential models.Credential) (models.TokenPair, error) {
	var pair models.TokenPair

	if err := l.guardSingleActive(ctx, credential.ID, models.PurposeVerifyAccount); err != nil {
		return pair, err
	}

	err := l.storage.InTx(ctx, func(s repository.Storage) error {
		var err error
		pair, err = l.issuePair(ctx, s, credential, models.PurposeVerifyAccount, l.verifyTTL, models.PurposeRefreshVerify, l.refreshVerifyTTL)
		return err
	})
	if err != nil {
		return pair, err
	}

	return pair, nil
}

// IssueChangePasswordToken mints a single CHANGE_PASSWORD token, guarded the
// same way as the verify pair
func (l *Lifecycle) IssueChangePasswordToken(ctx context.Context, credential models.Credential) (models.IssuedToken, error) {
	var issued models.IssuedToken

	if err := l.guardSingleActive(ctx, credential.ID, models.PurposeChangePwd); err != nil {
		return issued, err
	}

	issued, err := l.codec.Mint(credential.Email, models.PurposeChangePwd, l.changePwdTTL)
	if err != nil {
		return issued, err
	}

	err = l.storage.InTx(ctx, func(s repository.Storage) error {
		_, err := l.saveOrReplaceAccess(ctx, s, credential.ID, models.PurposeChangePwd, issued)
		return err
	})
	if err != nil {
		return models.IssuedToken{}, err
	}

	return issued, nil
}

// MintErrorToken mints the short-lived subject-less OAUTH_ERROR token.
// It is never persisted: the error callback checks envelope and purpose only
func (l *Lifecycle) MintErrorToken() (models.IssuedToken, error) {
	return l.codec.Mint("", models.PurposeOAuthError, l.oauthErrorTTL)
}

// ValidateAccess resolves a presented access-family token to its live record.
// Fails with ErrTokenInvalid / ErrTokenExpired (envelope),
// ErrTokenPurposeMismatch, ErrTokenRecordNotFound (revoked or consumed) or
// ErrTokenRecordExpired (usable window of the persisted row elapsed)
func (l *Lifecycle) ValidateAccess(ctx context.Context, signed string, purpose models.TokenPurpose) (models.AccessToken, error) {
	var record models.AccessToken

	claims, err := l.verifyForPurpose(signed, purpose)
	if err != nil {
		return record, err
	}

	tokenID, err := claims.TokenID()
	if err != nil {
		return record, err
	}

	record, err = l.storage.AccessToken().GetByTokenID(ctx, tokenID)
	if err != nil {
		return record, err
	}

	if record.ExpiresAt.Before(time.Now()) {
		return record, apperrors.ErrTokenRecordExpired
	}

	return record, nil
}

// ValidateRefresh is ValidateAccess for refresh-family tokens
func (l *Lifecycle) ValidateRefresh(ctx context.Context, signed string, purpose models.TokenPurpose) (models.RefreshToken, error) {
	var record models.RefreshToken

	claims, err := l.verifyForPurpose(signed, purpose)
	if err != nil {
		return record, err
	}

	tokenID, err := claims.TokenID()
	if err != nil {
		return record, err
	}

	record, err = l.storage.RefreshToken().GetByTokenID(ctx, tokenID)
	if err != nil {
		return record, err
	}

	if record.ExpiresAt.Before(time.Now()) {
		return record, apperrors.ErrTokenRecordExpired
	}

	return record, nil
}

// ValidateErrorToken checks the unpersisted OAUTH_ERROR envelope
func (l *Lifecycle) ValidateErrorToken(signed string) error {
	_, err := l.verifyForPurpose(signed, models.PurposeOAuthError)
	return err
}

// RotateAppAccess exchanges a valid REFRESH_APP token for a fresh ACCESS_APP
// token. The linked access record is overwritten in place (same row, new jti
// and expiry) and the refresh token itself stays valid until its own expiry
func (l *Lifecycle) RotateAppAccess(ctx context.Context, refreshSigned string) (models.IssuedToken, error) {
	var issued models.IssuedToken

	refreshRecord, err := l.ValidateRefresh(ctx, refreshSigned, models.PurposeRefreshApp)
	if err != nil {
		return issued, err
	}

	credential, err := l.storage.Credential().GetByID(ctx, refreshRecord.CredentialID)
	if err != nil {
		return issued, err
	}

	issued, err = l.codec.Mint(credential.Email, models.PurposeAccessApp, l.accessAppTTL)
	if err != nil {
		return issued, err
	}

	_, err = l.storage.AccessToken().Rotate(ctx, refreshRecord.AccessTokenID, models.AccessToken{
		TokenID:   issued.TokenID,
		CreatedAt: time.Now().Truncate(time.Second),
		ExpiresAt: issued.ExpiresAt,
	})
	if err != nil {
		return models.IssuedToken{}, err
	}

	return issued, nil
}

// RevokeByTokenID deletes the access record with the given jti. The paired
// refresh record goes with it (cascade). Revoking an absent record is a no-op
func (l *Lifecycle) RevokeByTokenID(ctx context.Context, tokenID uuid.UUID) error {
	return l.storage.AccessToken().Delete(ctx, tokenID)
}

// RevokeByOwner deletes the (credential, purpose) record and its pair
func (l *Lifecycle) RevokeByOwner(ctx context.Context, credentialID uuid.UUID, purpose models.TokenPurpose) error {
	return l.storage.AccessToken().DeleteByOwnerAndPurpose(ctx, credentialID, purpose)
}

// ConsumeAndPromote atomically marks the credential verified, burns the
// verify pair and issues the app pair. A second call with the same token id
// fails with apperrors.ErrTokenRecordNotFound
func (l *Lifecycle) ConsumeAndPromote(ctx context.Context, verifyTokenID uuid.UUID) (models.Credential, models.TokenPair, error) {
	var credential models.Credential
	var pair models.TokenPair

	err := l.storage.InTx(ctx, func(s repository.Storage) error {
		record, err := s.AccessToken().GetByTokenID(ctx, verifyTokenID)
		if err != nil {
			return err
		}

		credential, err = s.Credential().GetByID(ctx, record.CredentialID)
		if err != nil {
			return err
		}

		if err := s.Credential().SetVerified(ctx, credential.ID, true); err != nil {
			return err
		}
		credential.IsVerified = true

		if err := s.AccessToken().Delete(ctx, record.TokenID); err != nil {
			return err
		}

		pair, err = l.issuePair(ctx, s, credential, models.PurposeAccessApp, l.accessAppTTL, models.PurposeRefreshApp, l.refreshAppTTL)
		return err
	})
	if err != nil {
		return credential, pair, err
	}

	return credential, pair, nil
}

// guardSingleActive fails with ErrActiveTokenExists while a live record for
// (credential, purpose) remains. Point-in-time check, the unique
// (credential_id, purpose) constraint backstops concurrent double-submission
func (l *Lifecycle) guardSingleActive(ctx context.Context, credentialID uuid.UUID, purpose models.TokenPurpose) error {
	record, err := l.storage.AccessToken().GetByOwnerAndPurpose(ctx, credentialID, purpose)

	switch {
	case errors.Is(err, apperrors.ErrTokenRecordNotFound):
		return nil
	case err != nil:
		return err
	case record.ExpiresAt.After(time.Now()):
		return fmt.Errorf("live %q token remains until %s: %w", purpose, record.ExpiresAt, apperrors.ErrActiveTokenExists)
	default:
		// expired leftover, issuance will overwrite it in place
		return nil
	}
}

func (l *Lifecycle) verifyForPurpose(signed string, purpose models.TokenPurpose) (*Claims, error) {
	claims, err := l.codec.Verify(signed)
	if err != nil {
		return nil, err
	}

	if err := l.codec.RequirePurpose(claims, purpose); err != nil {
		return nil, err
	}

	return claims, nil
}

// issuePair mints and persists an access+refresh pair inside the caller's
// transaction. An existing record for the access purpose is overwritten in
// place, its orphaned refresh row dropped first so the fresh one can take the
// one-to-one link
func (l *Lifecycle) issuePair(
	ctx context.Context,
	s repository.Storage,
	credential models.Credential,
	accessPurpose models.TokenPurpose, accessTTL time.Duration,
	refreshPurpose models.TokenPurpose, refreshTTL time.Duration,
) (models.TokenPair, error) {
	var pair models.TokenPair

	access, err := l.codec.Mint(credential.Email, accessPurpose, accessTTL)
	if err != nil {
		return pair, err
	}
	refresh, err := l.codec.Mint(credential.Email, refreshPurpose, refreshTTL)
	if err != nil {
		return pair, err
	}

	record, err := l.saveOrReplaceAccess(ctx, s, credential.ID, accessPurpose, access)
	if err != nil {
		return pair, err
	}

	_, err = s.RefreshToken().Save(ctx, models.RefreshToken{
		TokenID:       refresh.TokenID,
		CredentialID:  credential.ID,
		AccessTokenID: record.ID,
		Purpose:       refreshPurpose,
		CreatedAt:     record.CreatedAt,
		ExpiresAt:     refresh.ExpiresAt,
	})
	if err != nil {
		return pair, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (l *Lifecycle) saveOrReplaceAccess(
	ctx context.Context,
	s repository.Storage,
	credentialID uuid.UUID,
	purpose models.TokenPurpose,
	issued models.IssuedToken,
) (models.AccessToken, error) {
	now := time.Now().Truncate(time.Second)

	old, err := s.AccessToken().GetByOwnerAndPurpose(ctx, credentialID, purpose)

	switch {
	case err == nil:
		if err := s.RefreshToken().DeleteByAccessTokenID(ctx, old.ID); err != nil {
			return models.AccessToken{}, err
		}
		return s.AccessToken().Rotate(ctx, old.ID, models.AccessToken{
			TokenID:   issued.TokenID,
			CreatedAt: now,
			ExpiresAt: issued.ExpiresAt,
		})
	case errors.Is(err, apperrors.ErrTokenRecordNotFound):
		return s.AccessToken().Save(ctx, models.AccessToken{
			TokenID:      issued.TokenID,
			CredentialID: credentialID,
			Purpose:      purpose,
			CreatedAt:    now,
			ExpiresAt:    issued.ExpiresAt,
		})
	default:
		return models.AccessToken{}, err
	}
}
