// Package config loads and validates all environment variables at startup.
// Every other package receives typed values; nothing else reads os.Getenv.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully-parsed application configuration.
type Config struct {
	// ── Server ────────────────────────────────────────────────────────────────
	Port        string // default "8080"
	Env         string // "development" | "staging" | "production"
	BaseURL     string // public API origin, e.g. "https://api.smartsendr.app"
	FrontendURL string // where OAuth and checkout redirects land
	Version     string

	// ── Database ──────────────────────────────────────────────────────────────
	DatabaseURL string

	// ── Auth ──────────────────────────────────────────────────────────────────
	SupabaseJWTSecret string // HS256 secret that signs user session tokens
	UsageResetToken   string // bearer secret for /api/reset-usage

	// ── LLM ───────────────────────────────────────────────────────────────────
	// Gemini is primary. Anthropic is the fallback when both keys are set.
	GeminiAPIKey    string
	GeminiModel     string // default "gemini-2.0-flash"
	AnthropicAPIKey string
	AnthropicModel  string // default "claude-sonnet-4-5"

	// ── Google OAuth (Gmail) ──────────────────────────────────────────────────
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	// ── Stripe ────────────────────────────────────────────────────────────────
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string
	SoftLaunch          bool // disables checkout while billing is not live

	// ── Storage ───────────────────────────────────────────────────────────────
	S3Bucket  string
	AWSRegion string

	// ── Redis ─────────────────────────────────────────────────────────────────
	// Optional. Empty disables per-user rate limiting.
	RedisURL           string
	RateLimitPerMinute int // default 20

	// ── Resend ────────────────────────────────────────────────────────────────
	// Optional. Empty disables batch summary emails.
	ResendAPIKey  string
	EmailFromAddr string
	EmailFromName string

	// ── Pipeline ──────────────────────────────────────────────────────────────
	PreviewConcurrency int           // default 4
	SendConcurrency    int           // default 1, sequential
	ResetPollInterval  time.Duration // default 1h
	ResetMaxRetries    int           // default 3
}

// Load reads a .env file from the working directory when present, then the
// environment, and returns a validated Config. Real environment variables
// always take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load never overrides variables that are already set.
	_ = godotenv.Load()

	c := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		BaseURL:             getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:5173"),
		Version:             getEnv("VERSION", "dev"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SupabaseJWTSecret:   os.Getenv("SUPABASE_JWT_SECRET"),
		UsageResetToken:     os.Getenv("USAGE_RESET_TOKEN"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		AnthropicAPIKey:     os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:      getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		GoogleClientID:      os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:  os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURI:   getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/auth/google/callback"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceID:       os.Getenv("STRIPE_PRICE_ID"),
		SoftLaunch:          getEnvAsBool("SOFT_LAUNCH", false),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		RedisURL:            os.Getenv("REDIS_URL"),
		RateLimitPerMinute:  getEnvAsInt("RATE_LIMIT_PER_MINUTE", 20),
		ResendAPIKey:        os.Getenv("RESEND_API_KEY"),
		EmailFromAddr:       getEnv("EMAIL_FROM_ADDR", "notifications@smartsendr.app"),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "SmartSendr"),
		PreviewConcurrency:  getEnvAsInt("PREVIEW_CONCURRENCY", 4),
		SendConcurrency:     getEnvAsInt("SEND_CONCURRENCY", 1),
		ResetPollInterval:   getEnvAsDuration("RESET_POLL_INTERVAL", time.Hour),
		ResetMaxRetries:     getEnvAsInt("RESET_MAX_RETRIES", 3),
	}

	return c, c.validate()
}

// LoadDatabaseURL reads only DATABASE_URL, honouring .env. Operator tools
// that never start the server use it instead of Load.
func LoadDatabaseURL() (string, error) {
	_ = godotenv.Load()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return "", errors.New("missing required env var: DATABASE_URL")
	}
	return url, nil
}

// IsProduction reports whether ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) validate() error {
	var errs []error

	required := map[string]string{
		"DATABASE_URL":         c.DatabaseURL,
		"SUPABASE_JWT_SECRET":  c.SupabaseJWTSecret,
		"USAGE_RESET_TOKEN":    c.UsageResetToken,
		"GOOGLE_CLIENT_ID":     c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET": c.GoogleClientSecret,
		"STRIPE_SECRET_KEY":    c.StripeSecretKey,
		"S3_BUCKET":            c.S3Bucket,
	}

	for name, val := range required {
		if val == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", name))
		}
	}

	if c.GeminiAPIKey == "" && c.AnthropicAPIKey == "" {
		errs = append(errs, fmt.Errorf("at least one of GEMINI_API_KEY or ANTHROPIC_API_KEY must be set"))
	}
	if !c.SoftLaunch && c.StripePriceID == "" {
		errs = append(errs, fmt.Errorf("STRIPE_PRICE_ID is required unless SOFT_LAUNCH is set"))
	}
	if c.PreviewConcurrency < 1 {
		errs = append(errs, fmt.Errorf("PREVIEW_CONCURRENCY must be at least 1, got %d", c.PreviewConcurrency))
	}
	if c.SendConcurrency < 1 {
		errs = append(errs, fmt.Errorf("SEND_CONCURRENCY must be at least 1, got %d", c.SendConcurrency))
	}

	return errors.Join(errs...)
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration syntax ("30s", "1h") or a bare integer,
// read as seconds unless the key names MINUTES or HOURS.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		switch {
		case strings.Contains(key, "HOURS"):
			return time.Duration(value) * time.Hour
		case strings.Contains(key, "MINUTES"):
			return time.Duration(value) * time.Minute
		default:
			return time.Duration(value) * time.Second
		}
	}
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
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
