// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageDriverS3     = "s3"
	StorageDriverMemory = "memory"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Public URL of this API, used for OAuth redirect URLs.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	// Web app that OAuth callbacks redirect back to.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. Uploads need a longer write window than plain JSON.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"3m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes for JSON endpoints (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
	// Upload size limit in bytes (default 100MB)
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"104857600"`

	// Blob storage
	StorageDriver     string `env:"STORAGE_DRIVER" envDefault:"s3"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`

	// OAuth providers. A provider without a client id is disabled.
	GitHubClientID      string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret  string `env:"GITHUB_CLIENT_SECRET"`
	DiscordClientID     string `env:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET"`

	// Sessions
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionCookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"true"`

	// Merging
	MergeCodePepper string        `env:"MERGE_CODE_PEPPER"`
	MergeTimeout    time.Duration `env:"MERGE_TIMEOUT" envDefault:"2m"`
	MergeLockTTL    time.Duration `env:"MERGE_LOCK_TTL" envDefault:"5m"`

	// Rate limiting
	RateLimitEnabled         bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRedeemPerMinute int  `env:"RATE_LIMIT_REDEEM_PER_MINUTE" envDefault:"5"`
	RateLimitRedeemBurst     int  `env:"RATE_LIMIT_REDEEM_BURST" envDefault:"5"`
	RateLimitAuthPerSecond   int  `env:"RATE_LIMIT_AUTH_PER_SECOND" envDefault:"5"`
	RateLimitAuthBurst       int  `env:"RATE_LIMIT_AUTH_BURST" envDefault:"20"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
// The frontend origin is always allowed.
func (c *Config) GetCORSAllowedOrigins() []string {
	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins)+1)
	seen := make(map[string]bool, len(origins)+1)

	add := func(origin string) {
		trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
		if trimmed == "" || seen[trimmed] {
			return
		}
		seen[trimmed] = true
		result = append(result, trimmed)
	}

	add(c.FrontendURL)
	for _, origin := range origins {
		add(origin)
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// OAuthRedirectURL returns the callback URL registered for a provider.
func (c *Config) OAuthRedirectURL(provider string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/" + provider + "/callback"
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=%s", StorageDriverS3)
		}
	case StorageDriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_DRIVER=%s is not allowed in production", StorageDriverMemory)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.MergeLockTTL <= c.MergeTimeout {
		return fmt.Errorf("MERGE_LOCK_TTL (%s) must exceed MERGE_TIMEOUT (%s)", c.MergeLockTTL, c.MergeTimeout)
	}
	if c.IsProduction() && c.MergeCodePepper == "" {
		return fmt.Errorf("MERGE_CODE_PEPPER is required in production")
	}
	return nil
}

// Load parses environment variables and returns a Config.
// Outside production a .env file in the working directory is read first;
// variables already set in the environment win.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	if appEnv := os.Getenv("APP_ENV"); appEnv == "" || appEnv == "development" {
		// Missing .env is fine.
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
