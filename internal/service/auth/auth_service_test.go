package auth

import (
	"context"
	"testing"
	"time"

	"pollstream/pkg/errors"
	"pollstream/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret-key"

func newTestService(secret string, adminIDs ...string) *Service {
	return NewService(secret, adminIDs, &logger.Logger{Logger: zap.NewNop()})
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	svc := newTestService(testSecret)

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "voter-123",
		"email": "voter@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	identity, err := svc.ValidateToken(context.Background(), tokenString)
	require.NoError(t, err)
	assert.Equal(t, "voter-123", identity.Sub)
	assert.Equal(t, "voter@example.com", identity.Email)
	assert.False(t, identity.Admin)
}

func TestValidateTokenAdminRole(t *testing.T) {
	svc := newTestService(testSecret)

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "admin-1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	identity, err := svc.ValidateToken(context.Background(), tokenString)
	require.NoError(t, err)
	assert.True(t, identity.Admin)
}

func TestValidateTokenConfiguredAdmin(t *testing.T) {
	svc := newTestService(testSecret, "ops-1")

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub": "ops-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	// No role claim; admin status comes from the configured list
	identity, err := svc.ValidateToken(context.Background(), tokenString)
	require.NoError(t, err)
	assert.True(t, identity.Admin)
}

func TestValidateTokenNonAdminRole(t *testing.T) {
	svc := newTestService(testSecret)

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "voter-1",
		"role": "moderator",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	identity, err := svc.ValidateToken(context.Background(), tokenString)
	require.NoError(t, err)
	assert.False(t, identity.Admin)
}

func TestValidateTokenRejections(t *testing.T) {
	svc := newTestService(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{
			name: "expired token",
			token: signToken(t, testSecret, jwt.MapClaims{
				"sub": "voter-1",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			name: "wrong signing key",
			token: signToken(t, "some-other-secret", jwt.MapClaims{
				"sub": "voter-1",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name: "missing subject",
			token: signToken(t, testSecret, jwt.MapClaims{
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name:  "garbage token",
			token: "not.a.jwt",
		},
		{
			name:  "empty token",
			token: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(context.Background(), tt.token)
			require.Error(t, err)
			appErr, ok := errors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrorTypeAuthentication, appErr.Type)
		})
	}
}

func TestValidateTokenRejectsUnsignedAlg(t *testing.T) {
	svc := newTestService(testSecret)

	// alg=none never passes the HMAC method check
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "voter-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), unsigned)
	require.Error(t, err)
}

func TestValidateTokenMissingSecret(t *testing.T) {
	svc := newTestService("")

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub": "voter-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := svc.ValidateToken(context.Background(), tokenString)
	require.Error(t, err)
}
