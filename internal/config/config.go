package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	ListenAddr  string
	DatabaseURL string
	RedisAddr   string
	TokenSecret string
	TokenIssuer string

	MaxBodyBytes    int64
	RateLimit       int
	RateLimitWindow time.Duration
}

// Load reads configuration from environment variables. DATABASE_URL and
// REDIS_ADDR are optional: without them the server runs on the in-memory
// store with rate limiting disabled, which suits local development.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getenv("APP_ENV", "development"),
		ListenAddr:      getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		TokenSecret:     os.Getenv("TOKEN_SECRET"),
		TokenIssuer:     getenv("TOKEN_ISSUER", "family-ledger"),
		MaxBodyBytes:    int64(getenvInt("MAX_BODY_BYTES", 1<<20)),
		RateLimit:       getenvInt("RATE_LIMIT", 60),
		RateLimitWindow: time.Duration(getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}
	if c.Environment == "production" || c.Environment == "staging" {
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be positive")
	}

	return nil
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
