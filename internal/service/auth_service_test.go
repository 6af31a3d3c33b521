package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/attendo-api/internal/models"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims *models.JWTClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func providerClaims(role string, expiresIn time.Duration) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		Email:        "asha@example.edu",
		UserMetadata: models.UserMetadata{Role: role, FirstName: "Asha"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", Audience: "authenticated"})

	claims, err := svc.ValidateToken(signToken(t, "secret", jwt.SigningMethodHS256, providerClaims("teacher", time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, "asha@example.edu", claims.Email)
}

func TestValidateTokenRejections(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Audience: "authenticated"})

	cases := map[string]string{
		"wrong secret": signToken(t, "other", jwt.SigningMethodHS256, providerClaims("student", time.Hour)),
		"expired":      signToken(t, "secret", jwt.SigningMethodHS256, providerClaims("student", -time.Minute)),
		"wrong alg":    signToken(t, "secret", jwt.SigningMethodHS512, providerClaims("student", time.Hour)),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}

func TestValidateTokenChecksAudience(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Audience: "attendo"})

	_, err := svc.ValidateToken(signToken(t, "secret", jwt.SigningMethodHS256, providerClaims("student", time.Hour)))
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
