package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/handlers/authctx"
	"github.com/nkiryanov/authgate/internal/handlers/render"
	"github.com/nkiryanov/authgate/internal/models"
)

// tokenValidator is the slice of the token lifecycle the guards need
type tokenValidator interface {
	ValidateAccess(ctx context.Context, signed string, purpose models.TokenPurpose) (models.AccessToken, error)
	ValidateRefresh(ctx context.Context, signed string, purpose models.TokenPurpose) (models.RefreshToken, error)
	ValidateErrorToken(signed string) error
}

// AccessTokenGuard authenticates access-family tokens for a single purpose.
// On success the resolved token id and owner land in the request context,
// on failure the chain short-circuits with the uniform rejection body
func AccessTokenGuard(v tokenValidator, purpose models.TokenPurpose) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				render.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}

			record, err := v.ValidateAccess(r.Context(), token, purpose)
			if err != nil {
				rejectToken(w, err)
				return
			}

			ctx := authctx.WithToken(r.Context(), record.TokenID, record.CredentialID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RefreshTokenGuard is AccessTokenGuard for refresh-family tokens
func RefreshTokenGuard(v tokenValidator, purpose models.TokenPurpose) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				render.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}

			record, err := v.ValidateRefresh(r.Context(), token, purpose)
			if err != nil {
				rejectToken(w, err)
				return
			}

			ctx := authctx.WithToken(r.Context(), record.TokenID, record.CredentialID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrorTokenGuard checks the unpersisted OAuth error token, envelope only
func ErrorTokenGuard(v tokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				render.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}

			if err := v.ValidateErrorToken(token); err != nil {
				rejectToken(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

// rejectToken maps the validation taxonomy to the documented status policy:
// envelope failures are unauthorized, record failures (revoked, consumed,
// window elapsed) are forbidden
func rejectToken(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		render.Error(w, "Token expired", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenInvalid), errors.Is(err, apperrors.ErrTokenPurposeMismatch):
		render.Error(w, "Invalid token", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenRecordNotFound), errors.Is(err, apperrors.ErrTokenRecordExpired):
		render.Error(w, "Token revoked", http.StatusForbidden)
	default:
		render.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
