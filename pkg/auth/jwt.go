// Package auth issues and checks operator tokens for privileged endpoints
// such as retraining.
package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"irrigation/pkg/errors"
)

// Scopes granted to operator tokens
const (
	ScopeRetrain = "retrain"
)

var (
	// ErrInvalidToken is returned when token is invalid
	ErrInvalidToken = errors.Wrap(errors.ErrUnauthorized, "invalid token")
	// ErrExpiredToken is returned when token is expired
	ErrExpiredToken = errors.Wrap(errors.ErrUnauthorized, "token expired")
	// ErrMissingScope is returned when the token does not grant the requested scope
	ErrMissingScope = errors.Wrap(errors.ErrUnauthorized, "token lacks required scope")
)

// Claims represents JWT claims
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the claims grant scope
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// JWTService signs and validates HS256 operator tokens
type JWTService struct {
	secretKey []byte
	issuer    string
	duration  time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(secretKey string, issuer string, duration time.Duration) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		duration:  duration,
	}
}

// GenerateToken issues a token for subject (an operator or CI job name)
func (s *JWTService) GenerateToken(subject string, scopes ...string) (string, error) {
	if subject == "" {
		return "", errors.NewValidationError("subject", "must not be empty", subject)
	}

	now := time.Now()
	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// ValidateToken validates a token issued by this service and checks it grants scope.
// An empty scope only checks the signature and lifetime.
func (s *JWTService) ValidateToken(tokenString, scope string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	if scope != "" && !claims.HasScope(scope) {
		return nil, ErrMissingScope
	}

	return claims, nil
}
