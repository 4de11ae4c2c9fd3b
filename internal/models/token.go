package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenPurpose is the claim value embedded in the signed envelope and
// persisted with the token record
type TokenPurpose string

const (
	PurposeAccessApp     TokenPurpose = "access_app"
	PurposeRefreshApp    TokenPurpose = "refresh_app"
	PurposeVerifyAccount TokenPurpose = "verify_account"
	PurposeRefreshVerify TokenPurpose = "refresh_verify_account"
	PurposeChangePwd     TokenPurpose = "change_password"
	PurposeOAuthError    TokenPurpose = "oauth_error"
)

// AccessToken is the persisted record of an issued access-family token.
// TokenID matches the 'jti' claim of the signed envelope.
type AccessToken struct {
	ID           uuid.UUID
	TokenID      uuid.UUID
	CredentialID uuid.UUID
	Purpose      TokenPurpose
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// RefreshToken is the persisted record of an issued refresh-family token.
// It exclusively owns the link to the access record it was paired with,
// deleting the access record cascades here.
type RefreshToken struct {
	ID            uuid.UUID
	TokenID       uuid.UUID
	CredentialID  uuid.UUID
	AccessTokenID uuid.UUID
	Purpose       TokenPurpose
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

type IssuedToken struct {
	Value     string
	TokenID   uuid.UUID
	ExpiresAt time.Time
}

// TokenPair is what a credential receives on sign-in, sign-up or promotion
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
