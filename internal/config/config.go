// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

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

	// Payments
	StripeSecretKey     string
	StripeWebhookSecret string
	FeeRateBPS          int    // platform fee in basis points (240 = 2.4%)
	Currency            string // default order currency

	// Order lifecycle
	AutoReleaseAfter    time.Duration // delivered orders auto-complete after this window
	AutoReleaseInterval time.Duration // how often the in-process sweeper runs

	// Security
	AdminSecret    string   // Admin API secret (X-Admin-Secret header)
	RateLimitRPM   int      // global per-client request ceiling
	AllowedOrigins []string // CORS origins, empty allows all

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint, tracing disabled if empty
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultFeeRateBPS      = 240
	DefaultCurrency        = "EUR"
	DefaultAutoRelease     = 48 * time.Hour
	DefaultSweepInterval   = 15 * time.Minute
	DefaultRateLimitPerMin = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		FeeRateBPS:          getEnvInt("FEE_RATE_BPS", DefaultFeeRateBPS),
		Currency:            getEnv("CURRENCY", DefaultCurrency),
		AutoReleaseAfter:    getEnvDuration("AUTO_RELEASE_AFTER", DefaultAutoRelease),
		AutoReleaseInterval: getEnvDuration("AUTO_RELEASE_INTERVAL", DefaultSweepInterval),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:        getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitPerMin),
		AllowedOrigins:      getEnvList("CORS_ALLOWED_ORIGINS"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.FeeRateBPS < 0 || c.FeeRateBPS > 10000 {
		return fmt.Errorf("FEE_RATE_BPS must be between 0 and 10000, got %d", c.FeeRateBPS)
	}
	if c.AutoReleaseAfter <= 0 {
		return fmt.Errorf("AUTO_RELEASE_AFTER must be positive")
	}
	if c.IsProduction() && c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required in production")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
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

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
