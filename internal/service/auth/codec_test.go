package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

func Test_Codec(t *testing.T) {
	t.Parallel()

	newCodec := func(t *testing.T) *Codec {
		codec, err := NewCodec("test-secret-key", "authgate")
		require.NoError(t, err, "codec should be created without errors")
		return codec
	}

	t.Run("new requires secret and issuer", func(t *testing.T) {
		_, err := NewCodec("", "authgate")
		require.Error(t, err, "empty secret key must be rejected")

		_, err = NewCodec("secret", "")
		require.Error(t, err, "empty issuer must be rejected")

		codec, err := NewCodec("secret", "authgate")
		require.NoError(t, err)
		require.Equal(t, defaultSigningMethod, codec.alg.Alg(), "default signing method should be set")
	})

	t.Run("Mint", func(t *testing.T) {
		t.Run("claims round trip", func(t *testing.T) {
			codec := newCodec(t)

			issued, err := codec.Mint("user@example.com", models.PurposeAccessApp, 15*time.Minute)
			require.NoError(t, err)
			require.NotEmpty(t, issued.Value)

			claims, err := codec.Verify(issued.Value)
			require.NoError(t, err)

			assert.Equal(t, "user@example.com", claims.Subject)
			assert.Equal(t, "authgate", claims.Issuer)
			assert.Equal(t, models.PurposeAccessApp, claims.Purpose)
			assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second)
			assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, time.Second)

			tokenID, err := claims.TokenID()
			require.NoError(t, err, "jti should parse as uuid")
			assert.Equal(t, issued.TokenID, tokenID)
			assert.WithinDuration(t, issued.ExpiresAt, claims.ExpiresAt.Time, 0)
		})

		t.Run("fresh jti every mint", func(t *testing.T) {
			codec := newCodec(t)

			first, err := codec.Mint("user@example.com", models.PurposeAccessApp, time.Minute)
			require.NoError(t, err)
			second, err := codec.Mint("user@example.com", models.PurposeAccessApp, time.Minute)
			require.NoError(t, err)

			assert.NotEqual(t, first.TokenID, second.TokenID)
			assert.NotEqual(t, first.Value, second.Value)
		})
	})

	t.Run("Verify", func(t *testing.T) {
		t.Run("not a token", func(t *testing.T) {
			codec := newCodec(t)

			_, err := codec.Verify("not a token at all")
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})

		t.Run("expired token", func(t *testing.T) {
			codec := newCodec(t)

			issued, err := codec.Mint("user@example.com", models.PurposeAccessApp, -time.Minute)
			require.NoError(t, err)

			_, err = codec.Verify(issued.Value)
			require.ErrorIs(t, err, apperrors.ErrTokenExpired, "expired envelope must map to the expired error")
		})

		t.Run("wrong key", func(t *testing.T) {
			codec := newCodec(t)
			other, err := NewCodec("another-secret", "authgate")
			require.NoError(t, err)

			issued, err := other.Mint("user@example.com", models.PurposeAccessApp, time.Minute)
			require.NoError(t, err)

			_, err = codec.Verify(issued.Value)
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})

		t.Run("wrong issuer", func(t *testing.T) {
			codec := newCodec(t)
			other, err := NewCodec("test-secret-key", "someone-else")
			require.NoError(t, err)

			issued, err := other.Mint("user@example.com", models.PurposeAccessApp, time.Minute)
			require.NoError(t, err)

			_, err = codec.Verify(issued.Value)
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})

		t.Run("not signed token", func(t *testing.T) {
			codec := newCodec(t)

			// Valid shape but signed with the none algorithm
			token := jwt.NewWithClaims(
				jwt.SigningMethodNone,
				Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						Issuer:    "authgate",
						IssuedAt:  jwt.NewNumericDate(time.Now()),
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
					},
					Purpose: models.PurposeAccessApp,
				},
			)
			signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)

			_, err = codec.Verify(signed)
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid, "valid token with empty alg must fail")
		})

		t.Run("no expiration claim", func(t *testing.T) {
			codec := newCodec(t)

			token := jwt.NewWithClaims(
				codec.alg,
				Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:       uuid.NewString(),
						Issuer:   "authgate",
						IssuedAt: jwt.NewNumericDate(time.Now()),
					},
					Purpose: models.PurposeAccessApp,
				},
			)
			signed, err := token.SignedString([]byte("test-secret-key"))
			require.NoError(t, err)

			_, err = codec.Verify(signed)
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid, "envelope without exp must fail")
		})
	})

	t.Run("RequirePurpose", func(t *testing.T) {
		codec := newCodec(t)

		issued, err := codec.Mint("user@example.com", models.PurposeRefreshApp, time.Minute)
		require.NoError(t, err)

		claims, err := codec.Verify(issued.Value)
		require.NoError(t, err)

		require.NoError(t, codec.RequirePurpose(claims, models.PurposeRefreshApp))
		require.ErrorIs(t, codec.RequirePurpose(claims, models.PurposeAccessApp), apperrors.ErrTokenPurposeMismatch)
	})
}
