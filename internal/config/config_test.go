package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, []string{"https://stocktalk.pages.dev", "http://localhost:5000", "http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 10, cfg.LoginAttemptsPerMinute)
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval)
	assert.False(t, cfg.TrustProxy)
	assert.False(t, cfg.BackupsEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", " https://a.example/ , ,https://b.example")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("BACKUP_ENCRYPTION_KEY", "backup-key")
	t.Setenv("LOGIN_BURST", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.TrustProxy)
	assert.True(t, cfg.BackupsEnabled())
	assert.Equal(t, 5, cfg.LoginBurst)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecret:              testSecret,
			DBDriver:               DriverSQLite,
			DBPath:                 "x.db",
			LoginAttemptsPerMinute: 10,
			LoginBurst:             5,
		}
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.JWTSecret = ""
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET is required")

	cfg = valid()
	cfg.JWTSecret = strings.Repeat("k", 31)
	assert.ErrorContains(t, cfg.Validate(), "at least 32")

	cfg = valid()
	cfg.DBDriver = DriverPostgres
	assert.ErrorContains(t, cfg.Validate(), "DATABASE_URL")

	cfg = valid()
	cfg.DBDriver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "unsupported DB_DRIVER")
}

func TestValidate_BackupInterval(t *testing.T) {
	cfg := &Config{
		JWTSecret:              testSecret,
		DBDriver:               DriverSQLite,
		DBPath:                 "x.db",
		LoginAttemptsPerMinute: 10,
		LoginBurst:             5,
		BackupEncryptionKey:    "backup-key",
	}
	assert.ErrorContains(t, cfg.Validate(), "BACKUP_INTERVAL_HOURS")

	cfg.BackupInterval = time.Hour
	assert.NoError(t, cfg.Validate())
}
