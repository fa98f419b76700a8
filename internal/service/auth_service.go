package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coursehub/scheduling-api/internal/models"
	"github.com/coursehub/scheduling-api/pkg/config"
	appErrors "github.com/coursehub/scheduling-api/pkg/errors"
)

// AuthService validates access tokens issued by the identity service. Token
// issuance, sessions and password handling live outside this API.
type AuthService struct {
	secret string
}

// NewAuthService creates the validator.
func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{secret: cfg.Secret}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}
