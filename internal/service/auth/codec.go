package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

const defaultSigningMethod = "HS256"

type Claims struct {
	jwt.RegisteredClaims
	Purpose models.TokenPurpose `json:"purpose"`
}

// TokenID returns the envelope's jti parsed as uuid
func (c *Claims) TokenID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("jti is not a valid uuid: %w", apperrors.ErrTokenInvalid)
	}
	return id, nil
}

// Codec signs and verifies token envelopes. Stateless, knows nothing about
// persisted records
type Codec struct {
	// Secret key to sign tokens
	key string

	// Issuer embedded in every envelope and required on verification
	issuer string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod
}

func NewCodec(secretKey string, issuer string) (*Codec, error) {
	if secretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if issuer == "" {
		return nil, errors.New("issuer must not be empty")
	}

	return &Codec{
		key:    secretKey,
		issuer: issuer,
		alg:    jwt.GetSigningMethod(defaultSigningMethod),
	}, nil
}

// Mint builds and signs an envelope with a fresh jti.
// Subject is the owner's email, empty for the subject-less error token
func (c *Codec) Mint(subject string, purpose models.TokenPurpose, ttl time.Duration) (models.IssuedToken, error) {
	var issued models.IssuedToken

	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)
	tokenID := uuid.New()

	token := jwt.NewWithClaims(
		c.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        tokenID.String(),
				Issuer:    c.issuer,
				Subject:   subject,
				IssuedAt:  jwt.NewNumericDate(now),
				NotBefore: jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			Purpose: purpose,
		},
	)
	signed, err := token.SignedString([]byte(c.key))
	if err != nil {
		return issued, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return models.IssuedToken{
		Value:     signed,
		TokenID:   tokenID,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks signature and issuer.
// An expired but otherwise valid envelope fails with apperrors.ErrTokenExpired,
// everything else fails with apperrors.ErrTokenInvalid
func (c *Codec) Verify(signed string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		signed,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(c.key), nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("error while verifying token. Err: %w", apperrors.ErrTokenExpired)
	default:
		return nil, fmt.Errorf("error while verifying token. Err: %w", apperrors.ErrTokenInvalid)
	}
}

// RequirePurpose ensures the envelope was minted for the expected purpose
func (c *Codec) RequirePurpose(claims *Claims, expected models.TokenPurpose) error {
	if claims.Purpose != expected {
		return fmt.Errorf("expected purpose %q got %q: %w", expected, claims.Purpose, apperrors.ErrTokenPurposeMismatch)
	}
	return nil
}
