package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-sufficiently-long-test-secret")
	t.Setenv("DB_PASSWORD", "postgres")
	t.Setenv("MFA_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, 5, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Auth.LockoutDuration)
	assert.Equal(t, 60, cfg.Auth.LoginRateLimit)
	assert.Equal(t, 10, cfg.MFA.BackupCodeCount)
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_WeakJWTSecretInProduction(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "short-secret")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadEncryptionKeyLength(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MFA_ENCRYPTION_KEY", "too-short")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("LOCKOUT_DURATION", "30m")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Auth.LockoutDuration)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
}
