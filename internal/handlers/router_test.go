package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository/postgres"
	"github.com/nkiryanov/authgate/internal/service/auth"
	"github.com/nkiryanov/authgate/internal/service/credential"
	"github.com/nkiryanov/authgate/internal/testutil"
)

// Notifier that hands the mailed tokens back to the test
type capturingNotifier struct {
	verifications chan models.TokenPair
	recoveries    chan models.IssuedToken
}

func (n *capturingNotifier) SendVerification(_ context.Context, _ string, pair models.TokenPair) error {
	n.verifications <- pair
	return nil
}

func (n *capturingNotifier) SendRecovery(_ context.Context, _ string, token models.IssuedToken) error {
	n.recoveries <- token
	return nil
}

func waitToken[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func Test_Routes(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Full production wiring over a rolled back transaction
	withServer := func(t *testing.T, fn func(url string, notifier *capturingNotifier)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			lifecycle, err := auth.NewLifecycle(auth.Config{SecretKey: "test-secret-key"}, storage)
			require.NoError(t, err)

			authService, err := auth.NewService(lifecycle, nil, storage)
			require.NoError(t, err)

			notifier := &capturingNotifier{
				verifications: make(chan models.TokenPair, 4),
				recoveries:    make(chan models.IssuedToken, 4),
			}
			credentialService, err := credential.NewService(storage, lifecycle, nil, notifier, nil)
			require.NoError(t, err)

			srv := httptest.NewServer(NewRouter(lifecycle, authService, credentialService, nil))
			defer srv.Close()

			fn(srv.URL+"/api/v1", notifier)
		})
	}

	do := func(t *testing.T, method string, url string, bearer string, data string) (int, string) {
		t.Helper()

		var body io.Reader
		if data != "" {
			body = strings.NewReader(data)
		}
		req, err := http.NewRequest(method, url, body)
		require.NoError(t, err)
		if data != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		return resp.StatusCode, string(raw)
	}

	// Sign up and walk the verification flow until the credential can sign in
	signUpVerified := func(t *testing.T, url string, notifier *capturingNotifier) PairTokenResponse {
		status, body := do(t, http.MethodPost, url+"/signup", "",
			`{"name": "testuser", "email": "testuser@example.com", "password": "password123"}`)
		require.Equalf(t, http.StatusCreated, status, "signup failed. Body: %s", body)

		verifyPair := waitToken(t, notifier.verifications, "verification email")

		status, body = do(t, http.MethodPatch, url+"/verify-account", verifyPair.Access.Value, "")
		require.Equalf(t, http.StatusOK, status, "verify failed. Body: %s", body)

		var pair PairTokenResponse
		require.NoError(t, json.Unmarshal([]byte(body), &pair))
		require.NotEmpty(t, pair.AccessToken)
		require.NotEmpty(t, pair.RefreshToken)
		return pair
	}

	t.Run("signup", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			withServer(t, func(url string, _ *capturingNotifier) {
				status, body := do(t, http.MethodPost, url+"/signup", "",
					`{"name": "testuser", "email": "testuser@example.com", "password": "password123"}`)

				require.Equal(t, http.StatusCreated, status)
				require.JSONEq(t, `{"message": "Account created, check your email to verify it"}`, body)
			})
		})

		t.Run("duplicate email", func(t *testing.T) {
			withServer(t, func(url string, _ *capturingNotifier) {
				data := `{"name": "testuser", "email": "testuser@example.com", "password": "password123"}`
				status, _ := do(t, http.MethodPost, url+"/signup", "", data)
				require.Equal(t, http.StatusCreated, status)

				status, body := do(t, http.MethodPost, url+"/signup", "", data)
				require.Equal(t, http.StatusConflict, status)
				require.JSONEq(t, `{"message": "Email already registered"}`, body)
			})
		})

		t.Run("invalid payload", func(t *testing.T) {
			withServer(t, func(url string, _ *capturingNotifier) {
				status, _ := do(t, http.MethodPost, url+"/signup", "",
					`{"name": "testuser", "email": "not-an-email", "password": "short"}`)
				require.Equal(t, http.StatusBadRequest, status)
			})
		})
	})

	t.Run("verify account flow", func(t *testing.T) {
		withServer(t, func(url string, notifier *capturingNotifier) {
			signUpVerified(t, url, notifier)

			// Verified credential signs in with its password
			status, body := do(t, http.MethodPost, url+"/signin", "",
				`{"email": "testuser@example.com", "password": "password123"}`)
			require.Equalf(t, http.StatusOK, status, "signin after verify failed. Body: %s", body)
		})
	})

	t.Run("signin", func(t *testing.T) {
		t.Run("unverified account", func(t *testing.T) {
			withServer(t, func(url string, _ *capturingNotifier) {
				status, _ := do(t, http.MethodPost, url+"/signup", "",
					`{"name": "testuser", "email": "testuser@example.com", "password": "password123"}`)
				require.Equal(t, http.StatusCreated, status)

				status, body := do(t, http.MethodPost, url+"/signin", "",
					`{"email": "testuser@example.com", "password": "password123"}`)
				require.Equal(t, http.StatusForbidden, status)
				require.JSONEq(t, `{"message": "Account is not verified, check your email"}`, body)
			})
		})

		t.Run("bad credentials", func(t *testing.T) {
			withServer(t, func(url string, notifier *capturingNotifier) {
				signUpVerified(t, url, notifier)

				status, body := do(t, http.MethodPost, url+"/signin", "",
					`{"email": "testuser@example.com", "password": "wrong-password"}`)
				require.Equal(t, http.StatusUnauthorized, status)
				require.JSONEq(t, `{"message": "Bad credentials"}`, body)

				status, _ = do(t, http.MethodPost, url+"/signin", "",
					`{"email": "nobody@example.com", "password": "password123"}`)
				require.Equal(t, http.StatusUnauthorized, status, "unknown email looks the same as wrong password")
			})
		})
	})

	t.Run("refresh token", func(t *testing.T) {
		withServer(t, func(url string, notifier *capturingNotifier) {
			pair := signUpVerified(t, url, notifier)

			status, body := do(t, http.MethodPost, url+"/refresh-token", "",
				`{"refreshToken": "`+pair.RefreshToken+`"}`)
			require.Equalf(t, http.StatusOK, status, "refresh failed. Body: %s", body)

			var rotated PairTokenResponse
			require.NoError(t, json.Unmarshal([]byte(body), &rotated))
			require.NotEqual(t, pair.AccessToken, rotated.AccessToken, "access token should be fresh")
			require.Equal(t, pair.RefreshToken, rotated.RefreshToken, "refresh token survives rotation")

			// Rotated-out access token no longer authorizes
			status, body = do(t, http.MethodGet, url+"/app/me", pair.AccessToken, "")
			require.Equal(t, http.StatusForbidden, status)
			require.JSONEq(t, `{"message": "Token revoked"}`, body)

			status, _ = do(t, http.MethodGet, url+"/app/me", rotated.AccessToken, "")
			require.Equal(t, http.StatusOK, status)
		})
	})

	t.Run("app routes", func(t *testing.T) {
		t.Run("me requires token", func(t *testing.T) {
			withServer(t, func(url string, _ *capturingNotifier) {
				status, body := do(t, http.MethodGet, url+"/app/me", "", "")
				require.Equal(t, http.StatusUnauthorized, status)
				require.JSONEq(t, `{"message": "Authorization required"}`, body)
			})
		})

		t.Run("signout kills the pair", func(t *testing.T) {
			withServer(t, func(url string, notifier *capturingNotifier) {
				pair := signUpVerified(t, url, notifier)

				status, body := do(t, http.MethodPost, url+"/app/signout", pair.AccessToken, "")
				require.Equal(t, http.StatusOK, status)
				require.JSONEq(t, `{"message": "Signed out successfully"}`, body)

				status, _ = do(t, http.MethodGet, url+"/app/me", pair.AccessToken, "")
				require.Equal(t, http.StatusForbidden, status)

				status, _ = do(t, http.MethodPost, url+"/refresh-token", "",
					`{"refreshToken": "`+pair.RefreshToken+`"}`)
				require.Equal(t, http.StatusForbidden, status, "paired refresh token dies on signout")
			})
		})
	})

	t.Run("recovery flow", func(t *testing.T) {
		t.Run("full flow", func(t *testing.T) {
			withServer(t, func(url string, notifier *capturingNotifier) {
				signUpVerified(t, url, notifier)

				status, body := do(t, http.MethodPost, url+"/recovery-account", "",
					`{"email": "testuser@example.com"}`)
				require.Equalf(t, http.StatusOK, status, "recovery failed. Body: %s", body)

				token := waitToken(t, notifier.recoveries, "recovery email")

				status, body = do(t, http.MethodPatch, url+"/change-password", token.Value,
					`{"password": "new-password-123"}`)
				require.Equalf(t, http.StatusOK, status, "change password failed. Body: %s", body)
				require.JSONEq(t, `{"message": "Password changed successfully"}`, body)

				// Old password is out, new one works
				status, _ = do(t, http.MethodPost, url+"/signin", "",
					`{"email": "testuser@example.com", "password": "password123"}`)
				require.Equal(t, http.StatusUnauthorized, status)

				status, _ = do(t, http.MethodPost, url+"/signin", "",
					`{"email": "testuser@example.com", "password": "new-password-123"}`)
				require.Equal(t, http.StatusOK, status)

				// The change token was burned with the password change
				status, _ = do(t, http.MethodPatch, url+"/change-password", token.Value,
					`{"password": "sneaky-second-change"}`)
				require.Equal(t, http.StatusForbidden, status)
			})
		})

		t.Run("unknown email", func(t *testing.T) {
			withServer(t, func(url string, _ *capturingNotifier) {
				status, body := do(t, http.MethodPost, url+"/recovery-account", "",
					`{"email": "nobody@example.com"}`)
				require.Equal(t, http.StatusNotFound, status)
				require.JSONEq(t, `{"message": "Account not registered"}`, body)
			})
		})

		t.Run("repeat recovery blocked", func(t *testing.T) {
			withServer(t, func(url string, notifier *capturingNotifier) {
				signUpVerified(t, url, notifier)

				status, _ := do(t, http.MethodPost, url+"/recovery-account", "", `{"email": "testuser@example.com"}`)
				require.Equal(t, http.StatusOK, status)
				waitToken(t, notifier.recoveries, "recovery email")

				status, body := do(t, http.MethodPost, url+"/recovery-account", "", `{"email": "testuser@example.com"}`)
				require.Equal(t, http.StatusConflict, status)
				require.JSONEq(t, `{"message": "Recovery instructions already sent, check your email"}`, body)
			})
		})
	})

	t.Run("refresh verify access", func(t *testing.T) {
		withServer(t, func(url string, notifier *capturingNotifier) {
			status, _ := do(t, http.MethodPost, url+"/signup", "",
				`{"name": "testuser", "email": "testuser@example.com", "password": "password123"}`)
			require.Equal(t, http.StatusCreated, status)

			verifyPair := waitToken(t, notifier.verifications, "verification email")

			// Verify token is still live, resend is throttled
			status, body := do(t, http.MethodPatch, url+"/refresh-access-to-verify-account", verifyPair.Refresh.Value, "")
			require.Equal(t, http.StatusConflict, status)
			require.JSONEq(t, `{"message": "Verification instructions already sent, check your email"}`, body)

			// Verify access token can not pass for the refresh one
			status, _ = do(t, http.MethodPatch, url+"/refresh-access-to-verify-account", verifyPair.Access.Value, "")
			require.Equal(t, http.StatusUnauthorized, status)
		})
	})

	t.Run("oauth", func(t *testing.T) {
		t.Run("first login", func(t *testing.T) {
			withServer(t, func(url string, _ *capturingNotifier) {
				status, body := do(t, http.MethodPost, url+"/oauth2/success", "",
					`{"name": "social", "email": "social@example.com"}`)
				require.Equal(t, http.StatusOK, status)

				var pair PairTokenResponse
				require.NoError(t, json.Unmarshal([]byte(body), &pair))

				status, _ = do(t, http.MethodGet, url+"/app/me", pair.AccessToken, "")
				require.Equal(t, http.StatusOK, status, "oauth pair should authorize app routes")
			})
		})

		t.Run("email conflict hands out error token", func(t *testing.T) {
			withServer(t, func(url string, notifier *capturingNotifier) {
				signUpVerified(t, url, notifier)

				status, body := do(t, http.MethodPost, url+"/oauth2/success", "",
					`{"name": "testuser", "email": "testuser@example.com"}`)
				require.Equal(t, http.StatusForbidden, status)

				var resp struct {
					Message    string `json:"message"`
					ErrorToken string `json:"errorToken"`
				}
				require.NoError(t, json.Unmarshal([]byte(body), &resp))
				require.NotEmpty(t, resp.ErrorToken)

				// The error token opens the error endpoint, nothing else
				status, _ = do(t, http.MethodGet, url+"/oauth2/error", resp.ErrorToken, "")
				require.Equal(t, http.StatusForbidden, status)

				status, _ = do(t, http.MethodGet, url+"/app/me", resp.ErrorToken, "")
				require.Equal(t, http.StatusUnauthorized, status)
			})
		})

		t.Run("error endpoint requires token", func(t *testing.T) {
			withServer(t, func(url string, _ *capturingNotifier) {
				status, _ := do(t, http.MethodGet, url+"/oauth2/error", "", "")
				require.Equal(t, http.StatusUnauthorized, status)
			})
		})
	})
}
