package handlers

import (
	"net/http"

	"github.com/nkiryanov/authgate/internal/handlers/middleware"
	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	lifecycle *auth.Lifecycle,
	authService authService,
	credentialService credentialService,
	l logger.Logger,
) http.Handler {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	withAppAccess := middleware.AccessTokenGuard(lifecycle, models.PurposeAccessApp)
	withVerifyAccess := middleware.AccessTokenGuard(lifecycle, models.PurposeVerifyAccount)
	withVerifyRefresh := middleware.RefreshTokenGuard(lifecycle, models.PurposeRefreshVerify)
	withChangePassword := middleware.AccessTokenGuard(lifecycle, models.PurposeChangePwd)
	withErrorToken := middleware.ErrorTokenGuard(lifecycle)

	api := http.NewServeMux()

	api.Handle("POST /signup", handleSignUp(credentialService))
	api.Handle("POST /signin", handleSignIn(authService))
	api.Handle("POST /refresh-token", handleTokenRefresh(authService))

	api.Handle("PATCH /verify-account", withVerifyAccess(handleVerifyAccount(credentialService)))
	api.Handle("PATCH /refresh-access-to-verify-account", withVerifyRefresh(handleRefreshVerifyAccess(credentialService)))

	api.Handle("POST /recovery-account", handleRecoverAccount(credentialService))
	api.Handle("PATCH /change-password", withChangePassword(handleChangePassword(credentialService)))

	api.Handle("POST /oauth2/success", handleOAuthSuccess(credentialService))
	api.Handle("GET /oauth2/error", withErrorToken(handleOAuthError()))

	app := http.NewServeMux()
	app.Handle("POST /signout", handleSignOut(authService))
	app.Handle("GET /me", handleMe())
	api.Handle("/app/", http.StripPrefix("/app", withAppAccess(app)))

	root := http.NewServeMux()
	root.Handle("/api/v1/", http.StripPrefix("/api/v1", api))

	handler := chain(root,
		middleware.LoggerMiddleware(l),
	)

	return handler
}
