package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Server.IsDevelopment())
	assert.Equal(t, TokenFormatJWT, cfg.Auth.TokenFormat)
	assert.Equal(t, RefreshStoreRedis, cfg.Auth.RefreshTokenStore)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, 5*time.Minute, cfg.OTP.LoginTTL)
	assert.Equal(t, 10*time.Minute, cfg.OTP.PasswordResetTTL)
	assert.Equal(t, 60*time.Second, cfg.OTP.ResendCooldown)
	assert.Equal(t, 15*time.Minute, cfg.OTP.ResetTokenTTL)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.False(t, cfg.Google.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "primary")
	t.Setenv("JWT_FALLBACK_SECRETS", "old-one, old-two,")
	t.Setenv("OTP_TTL", "120")
	t.Setenv("TRUSTED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Auth.JWTFallbackSecrets, 2)
	assert.Equal(t, []byte("old-two"), cfg.Auth.JWTFallbackSecrets[1])
	assert.Equal(t, 2*time.Minute, cfg.OTP.LoginTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.TrustedOrigins)
	assert.True(t, cfg.Google.Enabled())
}

func TestLoad_RejectsMissingSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("TOKEN_FORMAT", "paseto")
	t.Setenv("PASETO_KEY", "too-short")

	_, err = Load()
	require.ErrorContains(t, err, "PASETO_KEY")
}

func TestLoad_RejectsUnknownRefreshStore(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("REFRESH_TOKEN_STORE", "memcached")

	_, err := Load()
	require.ErrorContains(t, err, "REFRESH_TOKEN_STORE")
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", DBName: "d", SSLMode: "require", ChannelBinding: "require"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=require channel_binding=require", c.ConnectionString())
}
