package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation/pkg/errors"
)

const testSecret = "test-secret-key-min-32-characters-long"

func TestJWTService_GenerateToken(t *testing.T) {
	service := NewJWTService(testSecret, "irrigation-advisor", time.Hour)

	token, err := service.GenerateToken("ci-nightly", ScopeRetrain)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = service.GenerateToken("")
	assert.Error(t, err)
}

func TestJWTService_ValidateToken(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		scopes   []string
		require  string
		wantErr  error
	}{
		{"valid token with scope", time.Hour, []string{ScopeRetrain}, ScopeRetrain, nil},
		{"no scope required", time.Hour, nil, "", nil},
		{"missing scope", time.Hour, []string{"read"}, ScopeRetrain, ErrMissingScope},
		{"expired token", -time.Hour, []string{ScopeRetrain}, ScopeRetrain, ErrExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewJWTService(testSecret, "irrigation-advisor", tt.duration)

			token, err := service.GenerateToken("operator", tt.scopes...)
			require.NoError(t, err)

			claims, err := service.ValidateToken(token, tt.require)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "operator", claims.Subject)
			assert.Equal(t, "irrigation-advisor", claims.Issuer)
		})
	}
}

func TestJWTService_ValidateToken_Rejects(t *testing.T) {
	issuer := NewJWTService(testSecret, "irrigation-advisor", time.Hour)
	token, err := issuer.GenerateToken("operator", ScopeRetrain)
	require.NoError(t, err)

	tests := []struct {
		name    string
		service *JWTService
		token   string
	}{
		{"wrong secret", NewJWTService("another-secret-key-min-32-characters", "irrigation-advisor", time.Hour), token},
		{"wrong issuer", NewJWTService(testSecret, "someone-else", time.Hour), token},
		{"malformed", issuer, "not.a.jwt"},
		{"empty", issuer, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.service.ValidateToken(tt.token, ScopeRetrain)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTService_ErrorsAreUnauthorized(t *testing.T) {
	for _, err := range []error{ErrInvalidToken, ErrExpiredToken, ErrMissingScope} {
		assert.True(t, errors.Is(err, errors.ErrUnauthorized), err.Error())
	}
}
