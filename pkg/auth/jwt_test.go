package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, expiry time.Duration) *JWTService {
	t.Helper()
	cfg := DefaultJWTConfig()
	cfg.SecretKey = "test-secret"
	if expiry != 0 {
		cfg.TokenExpiry = expiry
	}
	svc, err := NewJWTService(cfg)
	require.NoError(t, err)
	return svc
}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(DefaultJWTConfig())
	assert.Error(t, err)
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newTestService(t, 0)

	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.PlayerID)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "gridlock", claims.Issuer)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	svc := newTestService(t, 0)
	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)

	otherCfg := DefaultJWTConfig()
	otherCfg.SecretKey = "different-secret"
	other, err := NewJWTService(otherCfg)
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := newTestService(t, -time.Minute)
	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := newTestService(t, 0)
	_, err := svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
