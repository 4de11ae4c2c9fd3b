package apperrors

import (
	"errors"
)

var (
	ErrCredentialExists      = errors.New("credential already exists")
	ErrCredentialNotFound    = errors.New("credential not found")
	ErrCredentialNotVerified = errors.New("credential is not verified")
	ErrPasswordIncorrect     = errors.New("password is incorrect")
	ErrFederatedOnly         = errors.New("credential uses federated login only")

	ErrTokenInvalid         = errors.New("token is invalid")
	ErrTokenExpired         = errors.New("token is expired")
	ErrTokenPurposeMismatch = errors.New("token purpose mismatch")
	ErrTokenRecordNotFound  = errors.New("token record not found")
	ErrTokenRecordExpired   = errors.New("token record is expired")
	ErrActiveTokenExists    = errors.New("active token already exists")
)
