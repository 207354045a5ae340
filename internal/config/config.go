package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration
type Config struct {
	Port        int
	Database    DatabaseConfig
	JWTSecret   string
	Environment string
	CORSOrigins []string
	Log         LogConfig
	Checks      CheckConfig
	API         APIConfig

	// Warnings collects non-fatal issues found while loading, logged once a
	// logger exists.
	Warnings []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type           string // postgres
	DSN            string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrationsPath string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Dir   string
	Level string
}

// CheckConfig holds monitor execution settings
type CheckConfig struct {
	TailscaleBinary        string
	MaxConcurrentChecks    int
	HeartbeatRetentionDays int
}

// APIConfig holds HTTP API settings
type APIConfig struct {
	RateLimit float64 // requests per second per client
	RateBurst int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "production")

	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Database: DatabaseConfig{
			Type:           getEnv("DATABASE_TYPE", "postgres"),
			DSN:            getEnv("DATABASE_DSN", buildPostgresDSN()),
			MaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "file://./migrations"),
		},
		Environment: env,
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", "logs"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Checks: CheckConfig{
			TailscaleBinary:        getEnv("TAILSCALE_BINARY", "tailscale"),
			MaxConcurrentChecks:    getEnvInt("MAX_CONCURRENT_CHECKS", 64),
			HeartbeatRetentionDays: getEnvInt("HEARTBEAT_RETENTION_DAYS", 90),
		},
		API: APIConfig{
			RateLimit: getEnvFloat("API_RATE_LIMIT", 10),
			RateBurst: getEnvInt("API_RATE_BURST", 20),
		},
	}

	secret, err := cfg.loadJWTSecret()
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = secret
	cfg.CORSOrigins = cfg.loadCORSOrigins()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "meshwatch")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "meshwatch")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}

		insecureSecrets := []string{
			"change-this-secret-in-production",
			"change-me-in-production",
			"secret",
			"password",
			"changeme",
		}
		for _, insecure := range insecureSecrets {
			if c.JWTSecret == insecure {
				return fmt.Errorf("JWT_SECRET is set to an insecure default value. Please set a strong random secret")
			}
		}
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	if c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Checks.TailscaleBinary == "" {
		return fmt.Errorf("TAILSCALE_BINARY must not be empty")
	}

	if c.Checks.MaxConcurrentChecks < 1 {
		return fmt.Errorf("MAX_CONCURRENT_CHECKS must be at least 1")
	}

	if c.Checks.HeartbeatRetentionDays < 1 {
		return fmt.Errorf("HEARTBEAT_RETENTION_DAYS must be at least 1")
	}

	if c.API.RateLimit <= 0 || c.API.RateBurst < 1 {
		return fmt.Errorf("API_RATE_LIMIT and API_RATE_BURST must be positive")
	}

	return nil
}

func (c *Config) loadJWTSecret() (string, error) {
	secret := os.Getenv("JWT_SECRET")

	// If JWT_SECRET is not set, generate a random one for development
	if secret == "" {
		if c.Environment == "production" {
			return "", fmt.Errorf("JWT_SECRET environment variable is required in production")
		}

		c.Warnings = append(c.Warnings,
			"JWT_SECRET not set, generated a random secret that will change on restart")
		return generateRandomSecret()
	}

	if len(secret) < 16 {
		return "", fmt.Errorf("JWT_SECRET must be at least 16 characters long")
	}

	return secret, nil
}

func (c *Config) loadCORSOrigins() []string {
	if appURL := getAppURL(); appURL != "" {
		return []string{appURL}
	}

	if c.Environment != "development" {
		c.Warnings = append(c.Warnings,
			"APP_URL not set, using default localhost origins")
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func generateRandomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

func getAppURL() string {
	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		return ""
	}
	return strings.TrimRight(appURL, "/")
}
