package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fieldpay/internal/logger"
)

type Config struct {
	Port        string
	PostgresURL string
	RedisURL    string

	// Payment processor
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIURL        string
	DefaultCurrency     string
	MinChargeMinor      int64

	// Retry state machine
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	CustomerLockTTL time.Duration

	JWTSecret string

	SMTP SMTPSettings

	AppName    string
	AppBaseURL string

	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

type SMTPSettings struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	UseSSL     bool
	RequireTLS bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		PostgresURL:         getEnv("POSTGRES_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeAPIURL:        getEnv("STRIPE_API_URL", ""),
		DefaultCurrency:     strings.ToLower(getEnv("DEFAULT_CURRENCY", "usd")),
		MinChargeMinor:      int64(getEnvInt("MIN_CHARGE_MINOR", 50)),
		RetryMaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:      getEnvDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:       getEnvDuration("RETRY_MAX_DELAY", 10*time.Second),
		CustomerLockTTL:     getEnvDuration("CUSTOMER_LOCK_TTL", 15*time.Second),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		SMTP: SMTPSettings{
			Host:       getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:       getEnvInt("SMTP_PORT", 587),
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			From:       getEnv("SMTP_FROM", ""),
			FromName:   getEnv("SMTP_FROM_NAME", "Billing"),
			UseSSL:     getEnvBool("SMTP_USE_SSL", false),
			RequireTLS: getEnvBool("SMTP_REQUIRE_TLS", true),
		},
		AppName:       getEnv("APP_NAME", "FieldPay"),
		AppBaseURL:    getEnv("APP_BASE_URL", "http://localhost:3000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadMigration reads only what schema migrations need.
func LoadMigration() (*Config, error) {
	cfg := &Config{
		PostgresURL:   getEnv("POSTGRES_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:     getEnv("LOG_OUTPUT", "stderr"),
	}
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("config validation failed: POSTGRES_URL is required")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required")
	}
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.MinChargeMinor < 1 {
		return fmt.Errorf("MIN_CHARGE_MINOR must be positive")
	}
	return nil
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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
