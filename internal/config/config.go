package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"receivables/internal/core"
	"receivables/internal/fieldservice"
	"receivables/internal/logger"
)

type Config struct {
	// Database
	DatabaseURL string

	// HTTP server
	ServerPort     string
	AllowedOrigins string
	JWTSecret      string

	// Matching and sync
	MatchWindowDays int
	SyncConcurrency int
	SyncErrorCap    int
	FSPFetchTimeout time.Duration

	// Field-service platform
	FSPBaseURL      string
	FSPAuthURL      string
	FSPClientID     string
	FSPClientSecret string
	FSPTenantID     string
	FSPAppKey       string
	FSPRatePerSec   float64

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the configuration from the environment. Callers load .env first.
func Load() (*Config, error) {
	config := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		FSPBaseURL:      getEnv("FSP_BASE_URL", fieldservice.DefaultBaseURL),
		FSPAuthURL:      getEnv("FSP_AUTH_URL", fieldservice.DefaultAuthURL),
		FSPClientID:     getEnv("FSP_CLIENT_ID", ""),
		FSPClientSecret: getEnv("FSP_CLIENT_SECRET", ""),
		FSPTenantID:     getEnv("FSP_TENANT_ID", ""),
		FSPAppKey:       getEnv("FSP_APP_KEY", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:   getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:       getEnv("LOG_OUTPUT", "stdout"),
	}

	var err error
	if config.MatchWindowDays, err = getEnvInt("MATCH_WINDOW_DAYS", core.DefaultMatchWindowDays); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.SyncConcurrency, err = getEnvInt("SYNC_CONCURRENCY", 4); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.SyncErrorCap, err = getEnvInt("SYNC_ERROR_CAP", 20); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.FSPFetchTimeout, err = getEnvDuration("FSP_FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.FSPRatePerSec, err = getEnvFloat("FSP_RATE_PER_SEC", 5); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.MatchWindowDays < 0 {
		return fmt.Errorf("MATCH_WINDOW_DAYS must not be negative")
	}
	if c.SyncConcurrency <= 0 {
		return fmt.Errorf("SYNC_CONCURRENCY must be positive")
	}
	if c.SyncErrorCap <= 0 {
		return fmt.Errorf("SYNC_ERROR_CAP must be positive")
	}
	if c.FSPFetchTimeout <= 0 {
		return fmt.Errorf("FSP_FETCH_TIMEOUT must be positive")
	}
	if c.FSPRatePerSec <= 0 {
		return fmt.Errorf("FSP_RATE_PER_SEC must be positive")
	}
	return nil
}

// RequireServer checks the settings only the HTTP server needs.
func (c *Config) RequireServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// FSPConfigured reports whether field-service credentials are present.
func (c *Config) FSPConfigured() bool {
	return c.FSPClientID != "" && c.FSPClientSecret != "" && c.FSPTenantID != "" && c.FSPAppKey != ""
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// GetSyncConfig returns the sync limits.
func (c *Config) GetSyncConfig() core.SyncConfig {
	return core.SyncConfig{
		Concurrency:  c.SyncConcurrency,
		FetchTimeout: c.FSPFetchTimeout,
		ErrorCap:     c.SyncErrorCap,
	}
}

// GetFieldServiceConfig returns the field-service client configuration.
func (c *Config) GetFieldServiceConfig() fieldservice.Config {
	return fieldservice.Config{
		BaseURL:      c.FSPBaseURL,
		AuthURL:      c.FSPAuthURL,
		ClientID:     c.FSPClientID,
		ClientSecret: c.FSPClientSecret,
		TenantID:     c.FSPTenantID,
		AppKey:       c.FSPAppKey,
		RatePerSec:   c.FSPRatePerSec,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 10s: %w", key, err)
	}
	return d, nil
}
