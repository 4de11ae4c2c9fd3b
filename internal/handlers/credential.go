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

type credentialService interface {
	// Register a new credential and start account verification
	SignUp(ctx context.Context, name string, email string, password string) error

	// Burn the verify pair identified by its access token and issue the app pair
	VerifyAccount(ctx context.Context, verifyTokenID uuid.UUID) (models.TokenPair, error)

	// Re-send verification instructions with a fresh verify access token
	RefreshVerifyAccess(ctx context.Context, credentialID uuid.UUID) error

	// Start password recovery for the credential with the given email
	RecoverAccount(ctx context.Context, email string) error

	// Set a new password and burn the change password token
	ChangePassword(ctx context.Context, changeTokenID uuid.UUID, password string) error

	// Sign in or register a credential coming from a federated provider
	OAuthLogin(ctx context.Context, name string, email string) (models.TokenPair, error)

	// Short lived unpersisted token carrying an OAuth failure back to the client
	OAuthErrorToken() (models.IssuedToken, error)
}

func handleSignUp(credential credentialService) http.Handler {
	type SignUpRequest struct {
		Name     string `json:"name" validate:"required"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[SignUpRequest](w, r)
		if err != nil {
			return
		}

		err = credential.SignUp(r.Context(), data.Name, data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrCredentialExists):
				render.Error(w, "Email already registered", http.StatusConflict)
			default:
				render.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSONWithStatus(w, MessageResponse{Message: "Account created, check your email to verify it"}, http.StatusCreated)
	})
}

func handleVerifyAccount(credential credentialService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenID, ok := authctx.TokenID(r.Context())
		if !ok {
			render.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		pair, err := credential.VerifyAccount(r.Context(), tokenID)
		if err != nil {
			rejectTokenError(w, err)
			return
		}

		render.JSON(w, PairTokenResponse{
			AccessToken:  pair.Access.Value,
			RefreshToken: pair.Refresh.Value,
		})
	})
}

func handleRefreshVerifyAccess(credential credentialService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credentialID, ok := authctx.CredentialID(r.Context())
		if !ok {
			render.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		err := credential.RefreshVerifyAccess(r.Context(), credentialID)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrActiveTokenExists):
				render.Error(w, "Verification instructions already sent, check your email", http.StatusConflict)
			case errors.Is(err, apperrors.ErrCredentialNotFound):
				render.Error(w, "Token revoked", http.StatusForbidden)
			default:
				render.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, MessageResponse{Message: "Verification instructions sent, check your email"})
	})
}

func handleRecoverAccount(credential credentialService) http.Handler {
	type RecoverRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RecoverRequest](w, r)
		if err != nil {
			return
		}

		err = credential.RecoverAccount(r.Context(), data.Email)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrCredentialNotFound):
				render.Error(w, "Account not registered", http.StatusNotFound)
			case errors.Is(err, apperrors.ErrFederatedOnly):
				render.Error(w, "Account uses social login, sign in with your provider", http.StatusForbidden)
			case errors.Is(err, apperrors.ErrCredentialNotVerified):
				render.Error(w, "Account is not verified, check your email", http.StatusForbidden)
			case errors.Is(err, apperrors.ErrActiveTokenExists):
				render.Error(w, "Recovery instructions already sent, check your email", http.StatusConflict)
			default:
				render.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, MessageResponse{Message: "Recovery instructions sent, check your email"})
	})
}

func handleChangePassword(credential credentialService) http.Handler {
	type ChangePasswordRequest struct {
		Password string `json:"password" validate:"required,min=8"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[ChangePasswordRequest](w, r)
		if err != nil {
			return
		}

		tokenID, ok := authctx.TokenID(r.Context())
		if !ok {
			render.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		if err := credential.ChangePassword(r.Context(), tokenID, data.Password); err != nil {
			rejectTokenError(w, err)
			return
		}

		render.JSON(w, MessageResponse{Message: "Password changed successfully"})
	})
}

func handleOAuthSuccess(credential credentialService) http.Handler {
	type OAuthSuccessRequest struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"required,email"`
	}

	type OAuthErrorResponse struct {
		Message    string `json:"message"`
		ErrorToken string `json:"errorToken,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[OAuthSuccessRequest](w, r)
		if err != nil {
			return
		}

		pair, err := credential.OAuthLogin(r.Context(), data.Name, data.Email)
		if err != nil {
			if errors.Is(err, apperrors.ErrFederatedOnly) {
				// Locally registered account with the same email. Hand the
				// client a short lived token it may exchange for the error
				// details on the error endpoint
				resp := OAuthErrorResponse{Message: "Email already registered with a password"}
				if errToken, mintErr := credential.OAuthErrorToken(); mintErr == nil {
					resp.ErrorToken = errToken.Value
				}
				render.JSONWithStatus(w, resp, http.StatusForbidden)
				return
			}
			render.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, PairTokenResponse{
			AccessToken:  pair.Access.Value,
			RefreshToken: pair.Refresh.Value,
		})
	})
}

func handleOAuthError() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSONWithStatus(w, MessageResponse{Message: "Authentication with the provider failed, try again"}, http.StatusForbidden)
	})
}
