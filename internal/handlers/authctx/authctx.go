package authctx

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	tokenIDKey      ctxKey = "tokenID"
	credentialIDKey ctxKey = "credentialID"
)

// WithToken stores the resolved token id and owner set by a guard
func WithToken(ctx context.Context, tokenID uuid.UUID, credentialID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, tokenIDKey, tokenID)
	return context.WithValue(ctx, credentialIDKey, credentialID)
}

// TokenID extracts the validated token's jti
func TokenID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tokenIDKey).(uuid.UUID)
	return id, ok
}

// CredentialID extracts the resolved owner of the validated token
func CredentialID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(credentialIDKey).(uuid.UUID)
	return id, ok
}
