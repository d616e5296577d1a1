package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type Config struct {
	// Server
	Port            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	TrustProxy      bool

	// Database configuration
	DBDriver        string
	DBPath          string
	DBEncryptionKey string
	DatabaseURL     string

	// Token signing
	JWTSecret string

	// Login throttling
	LoginAttemptsPerMinute int
	LoginBurst             int

	// Audit configuration
	AuditLogPath   string
	AuditAsyncMode bool

	// Backup configuration
	BackupDir           string
	BackupEncryptionKey string
	BackupInterval      time.Duration
	BackupRetentionDays int

	// Application settings
	Environment string
	LogLevel    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (not required in production)
	godotenv.Load()

	config := &Config{
		Port:                   getEnv("PORT", "5000"),
		ShutdownTimeout:        time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,
		CORSOrigins:            getEnvAsList("CORS_ORIGINS", "https://stocktalk.pages.dev,http://localhost:5000,http://localhost:3000"),
		TrustProxy:             getEnvAsBool("TRUST_PROXY_HEADERS", false),
		DBDriver:               getEnv("DB_DRIVER", DriverSQLite),
		DBPath:                 getEnv("DB_PATH", "./data/stocktalk.db"),
		DBEncryptionKey:        getEnv("DB_ENCRYPTION_KEY", ""),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		LoginAttemptsPerMinute: getEnvAsInt("LOGIN_ATTEMPTS_PER_MINUTE", 10),
		LoginBurst:             getEnvAsInt("LOGIN_BURST", 5),
		AuditLogPath:           getEnv("AUDIT_LOG_PATH", "./logs/audit.log"),
		AuditAsyncMode:         getEnvAsBool("AUDIT_ASYNC_MODE", true),
		BackupDir:              getEnv("BACKUP_DIR", "./backups"),
		BackupEncryptionKey:    getEnv("BACKUP_ENCRYPTION_KEY", ""),
		BackupInterval:         time.Duration(getEnvAsInt("BACKUP_INTERVAL_HOURS", 24)) * time.Hour,
		BackupRetentionDays:    getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		Environment:            getEnv("APP_ENV", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}

	// Validate critical configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite3 driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.LoginAttemptsPerMinute <= 0 || c.LoginBurst <= 0 {
		return fmt.Errorf("LOGIN_ATTEMPTS_PER_MINUTE and LOGIN_BURST must be positive")
	}

	if c.BackupsEnabled() && c.BackupInterval <= 0 {
		return fmt.Errorf("BACKUP_INTERVAL_HOURS must be positive")
	}

	return nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// BackupsEnabled is true only for the file-backed driver with a backup key set
func (c *Config) BackupsEnabled() bool {
	return c.DBDriver == DriverSQLite && c.BackupEncryptionKey != ""
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if v := strings.TrimRight(strings.TrimSpace(part), "/"); v != "" {
			out = append(out, v)
		}
	}
	return out
}
