// Package config loads all environment variables for the highlight API service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the highlight API service.
type Config struct {
	// Server
	APIHost string
	APIPort string

	// Database
	DatabaseURL string

	// ── Highlight matcher ────────────────────────────────

	// HighlightMaxSpan caps end - start of a candidate fragment range
	HighlightMaxSpan int

	// HighlightMinWordLen drops normalized words shorter than this many runes
	HighlightMinWordLen int

	// HighlightStopWords overrides the coverage stop-word list (nil = built-in list)
	HighlightStopWords []string

	// HighlightMaxFragments limits fragments per request, and across all pages of a session
	HighlightMaxFragments int

	// HighlightMaxTargets limits targets per request or session
	HighlightMaxTargets int

	// ── Viewer sessions ──────────────────────────────────

	// SessionIdleTTLMin expires sessions unused for this many minutes (0 = never)
	SessionIdleTTLMin int

	// SessionSweepIntervalSec is how often expired sessions are removed
	SessionSweepIntervalSec int

	// AuthEnabled controls whether JWT auth is enforced
	AuthEnabled bool

	// JWTSecret is the HMAC-SHA256 signing key for JWT tokens
	JWTSecret string

	// JWTExpiryHours is the JWT token lifetime in hours (default 24)
	JWTExpiryHours int

	// MaxBodyMB caps JSON request bodies
	MaxBodyMB int

	// Timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		APIHost: envOr("API_HOST", "0.0.0.0"),
		APIPort: envOr("API_PORT", "8000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		HighlightMaxSpan:      envInt("HIGHLIGHT_MAX_SPAN", 500),
		HighlightMinWordLen:   envInt("HIGHLIGHT_MIN_WORD_LEN", 3),
		HighlightStopWords:    envList("HIGHLIGHT_STOP_WORDS"),
		HighlightMaxFragments: envInt("HIGHLIGHT_MAX_FRAGMENTS", 50000),
		HighlightMaxTargets:   envInt("HIGHLIGHT_MAX_TARGETS", 200),

		SessionIdleTTLMin:       envInt("SESSION_IDLE_TTL_MIN", 30),
		SessionSweepIntervalSec: envInt("SESSION_SWEEP_INTERVAL_SEC", 60),

		AuthEnabled:    envBool("AUTH_ENABLED", false),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTExpiryHours: envInt("JWT_EXPIRY_HOURS", 24),

		MaxBodyMB: envInt("MAX_BODY_MB", 16),

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AuthEnabled && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED=true")
	}
	if cfg.HighlightMaxSpan <= 0 {
		return nil, fmt.Errorf("HIGHLIGHT_MAX_SPAN must be positive, got %d", cfg.HighlightMaxSpan)
	}
	if cfg.HighlightMinWordLen <= 0 {
		return nil, fmt.Errorf("HIGHLIGHT_MIN_WORD_LEN must be positive, got %d", cfg.HighlightMinWordLen)
	}

	return cfg, nil
}

// Addr returns the listen address as "host:port".
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.APIHost, c.APIPort)
}

// SessionIdleTTL returns the session idle TTL as a time.Duration.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMin) * time.Minute
}

// SessionSweepInterval returns the sweep interval as a time.Duration.
func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepIntervalSec) * time.Second
}

// MaxBodyBytes returns the request body cap in bytes.
func (c *Config) MaxBodyBytes() int64 {
	return int64(c.MaxBodyMB) * 1024 * 1024
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envList splits a comma-separated variable. Unset or blank returns nil.
func envList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
