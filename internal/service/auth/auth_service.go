package auth

import (
	"context"
	"fmt"

	"pollstream/internal/domain"
	"pollstream/pkg/errors"
	"pollstream/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// Service validates bearer tokens into a stable voter identity. Tokens are
// HMAC-signed JWTs minted by the external authenticator; this service never
// issues credentials. Admin status comes from the token's role claim or
// from the configured admin list.
type Service struct {
	secret []byte
	admins map[string]bool
	logger *logger.Logger
}

// NewService creates a new auth service
func NewService(secret string, adminIDs []string, log *logger.Logger) *Service {
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}

	return &Service{
		secret: []byte(secret),
		admins: admins,
		logger: log,
	}
}

// ValidateToken parses and verifies a JWT, returning the voter identity it
// carries. Expiry is enforced by the parser.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*domain.VoterIdentity, error) {
	if len(s.secret) == 0 {
		s.logger.Error("JWT_SECRET not configured")
		return nil, errors.NewAuthenticationError("token validation not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		s.logger.WithError(err).Debug("Token validation failed")
		return nil, errors.NewAuthenticationError("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.NewAuthenticationError("invalid or expired token")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.NewAuthenticationError("token carries no subject")
	}

	identity := &domain.VoterIdentity{Sub: sub}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if role, ok := claims["role"].(string); ok && role == "admin" {
		identity.Admin = true
	}
	if s.admins[sub] {
		identity.Admin = true
	}

	s.logger.WithField("voter_id", identity.Sub).Debug("Token validated")
	return identity, nil
}
