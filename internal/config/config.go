// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Loyalty defaults applied to newly registered businesses
	DefaultRewardThreshold int // purchases required per reward
	DefaultCooldownMinutes int // minimum gap between purchases per customer

	// Fraud monitor
	VelocityWindowHours int // look-back window for the suspicious-activity scan
	VelocityThreshold   int // purchase count above which a customer is flagged

	// SMTP (owner/customer email notifications)
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Telegram fallback credentials (businesses may override per-business)
	TelegramBotToken string
	TelegramChatID   string

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing

	// Security
	RateLimitRPM int
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultRewardThreshold = 10
	DefaultCooldownMinutes = 60
	DefaultVelocityWindow  = 24
	DefaultVelocityLimit   = 5
	DefaultRateLimit       = 120
	DefaultSMTPHost        = "smtp.gmail.com"
	DefaultSMTPPort        = 587
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", DefaultPort),
		Env:                    getEnv("ENV", DefaultEnv),
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:            os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		DefaultRewardThreshold: getEnvInt("REWARD_THRESHOLD", DefaultRewardThreshold),
		DefaultCooldownMinutes: getEnvInt("COOLDOWN_MINUTES", DefaultCooldownMinutes),
		VelocityWindowHours:    getEnvInt("VELOCITY_WINDOW_HOURS", DefaultVelocityWindow),
		VelocityThreshold:      getEnvInt("VELOCITY_THRESHOLD", DefaultVelocityLimit),
		SMTPHost:               getEnv("SMTP_HOST", DefaultSMTPHost),
		SMTPPort:               getEnvInt("SMTP_PORT", DefaultSMTPPort),
		SMTPUser:               os.Getenv("SMTP_USER"),
		SMTPPass:               os.Getenv("SMTP_PASS"),
		SMTPFrom:               getEnv("SMTP_FROM", "FideliQR <no-reply@fideliqr.app>"),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:         os.Getenv("TELEGRAM_CHAT_ID"),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:           getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent
func (c *Config) Validate() error {
	if c.DefaultRewardThreshold < 1 {
		return fmt.Errorf("REWARD_THRESHOLD must be >= 1 (got %d)", c.DefaultRewardThreshold)
	}
	if c.DefaultCooldownMinutes < 0 {
		return fmt.Errorf("COOLDOWN_MINUTES must be >= 0 (got %d)", c.DefaultCooldownMinutes)
	}
	if c.VelocityWindowHours < 1 {
		return fmt.Errorf("VELOCITY_WINDOW_HOURS must be >= 1 (got %d)", c.VelocityWindowHours)
	}
	if c.VelocityThreshold < 1 {
		return fmt.Errorf("VELOCITY_THRESHOLD must be >= 1 (got %d)", c.VelocityThreshold)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
