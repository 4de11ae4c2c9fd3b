package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/handlers/authctx"
	"github.com/nkiryanov/authgate/internal/handlers/render"
	"github.com/nkiryanov/authgate/internal/models"
)

type authService interface {
	// Sign in with email and password
	// Has to return apperrors.ErrCredentialNotFound or ErrPasswordIncorrect
	// on bad credentials, ErrFederatedOnly and ErrCredentialNotVerified otherwise
	SignIn(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Exchange a refresh token for a fresh access token
	Rotate(ctx context.Context, refreshToken string) (models.IssuedToken, error)

	// Burn the token pair identified by the presented access token
	SignOut(ctx context.Context, accessTokenID uuid.UUID) error
}

// PairTokenResponse is returned whenever a credential receives the app pair
type PairTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func handleSignIn(auth authService) http.Handler {
	type SignInRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[SignInRequest](w, r)
		if err != nil {
			return
		}

		pair, err := auth.SignIn(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrCredentialNotFound), errors.Is(err, apperrors.ErrPasswordIncorrect):
				render.Error(w, "Bad credentials", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrFederatedOnly):
				render.Error(w, "Account uses social login, sign in with your provider", http.StatusForbidden)
			case errors.Is(err, apperrors.ErrCredentialNotVerified):
				render.Error(w, "Account is not verified, check your email", http.StatusForbidden)
			default:
				render.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, PairTokenResponse{
			AccessToken:  pair.Access.Value,
			RefreshToken: pair.Refresh.Value,
		})
	})
}

func handleTokenRefresh(auth authService) http.Handler {
	type RefreshRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RefreshRequest](w, r)
		if err != nil {
			return
		}

		access, err := auth.Rotate(r.Context(), data.RefreshToken)
		if err != nil {
			rejectTokenError(w, err)
			return
		}

		// Refresh token is long lived and survives rotation untouched
		render.JSON(w, PairTokenResponse{
			AccessToken:  access.Value,
			RefreshToken: data.RefreshToken,
		})
	})
}

func handleSignOut(auth authService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenID, ok := authctx.TokenID(r.Context())
		if !ok {
			render.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		if err := auth.SignOut(r.Context(), tokenID); err != nil {
			render.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, MessageResponse{Message: "Signed out successfully"})
	})
}

func handleMe() http.Handler {
	type response struct {
		CredentialID uuid.UUID `json:"credentialId"`
		TokenID      uuid.UUID `json:"tokenId"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credentialID, _ := authctx.CredentialID(r.Context())
		tokenID, _ := authctx.TokenID(r.Context())
		render.JSON(w, response{CredentialID: credentialID, TokenID: tokenID})
	})
}

// rejectTokenError maps the token validation taxonomy to the documented
// status policy, same mapping the guards use
func rejectTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		render.Error(w, "Token expired", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenInvalid), errors.Is(err, apperrors.ErrTokenPurposeMismatch):
		render.Error(w, "Invalid token", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenRecordNotFound), errors.Is(err, apperrors.ErrTokenRecordExpired):
		render.Error(w, "Token revoked", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrCredentialNotFound):
		render.Error(w, "Token revoked", http.StatusForbidden)
	default:
		render.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
