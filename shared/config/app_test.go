package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("SMTP_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.NotEmpty(t, cfg.JWT.Secret)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.False(t, cfg.SMTP.Configured())
	assert.Nil(t, cfg.Public.SubmitterUserID)
	assert.Equal(t, 15, cfg.Database.MaxOpenConns)
	assert.Contains(t, cfg.Database.GetDSN(), "dbname=julis_intranet")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DOCUMENT_AMENDMENT_NOTIFY_EMAILS", "lv@example.org")
	t.Setenv("PUBLIC_DEFAULT_TENANT_ID", "6f1c2d4e-9a57-4d0e-8a39-2b1f1f8f0c11")
	t.Setenv("BOARD_ROSTER", "Anna; Ben ;Cem")
	t.Setenv("BOARD_SIZE", "2")
	t.Setenv("APP_URL", "https://intranet.example/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"lv@example.org"}, cfg.AmendmentNotifyEmails)
	require.NotNil(t, cfg.Public.DefaultTenantID)
	assert.Equal(t, "6f1c2d4e-9a57-4d0e-8a39-2b1f1f8f0c11", cfg.Public.DefaultTenantID.String())
	assert.Equal(t, []string{"Anna", "Ben", "Cem"}, cfg.BoardRoster)
	assert.Equal(t, 2, cfg.BoardSize)
	assert.Equal(t, "https://intranet.example", cfg.AppURL)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "x")
	t.Setenv("SMTP_PORT", "abc")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidPoolSize(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "x")
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET_KEY", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestSMTPConfig_Missing(t *testing.T) {
	c := SMTPConfig{Host: "smtp.example.org"}
	assert.Equal(t, []string{"SMTP_USER", "SMTP_PASSWORD"}, c.Missing())
	assert.Equal(t, "", c.Sender())

	c.User, c.Password = "noreply@example.org", "pw"
	assert.True(t, c.Configured())
	assert.Equal(t, "noreply@example.org", c.Sender())
}
