// Package auth turns bearer tokens into the request context that conditional
// filterability is decided on.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid token")

// Claims are the token claims querykit reads
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 tokens
type TokenService struct {
	secretKey []byte
	tokenTTL  time.Duration
}

// NewTokenService creates a TokenService with the given secret key and token TTL
func NewTokenService(secretKey string, tokenTTL time.Duration) *TokenService {
	return &TokenService{
		secretKey: []byte(secretKey),
		tokenTTL:  tokenTTL,
	}
}

// GenerateToken signs a token for principal carrying roles
func (s *TokenService) GenerateToken(principal string, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken verifies a token and returns its claims
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequestContext verifies a token and converts its claims
func (s *TokenService) RequestContext(tokenString string) (schema.RequestContext, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return schema.RequestContext{}, err
	}
	return schema.RequestContext{Principal: claims.Subject, Roles: claims.Roles}, nil
}
