package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the live subsystem.
type Config struct {
	// LiveURL is the WebSocket endpoint for the live connection.
	LiveURL string

	// APIBaseURL is the REST API base URL.
	APIBaseURL string

	// DatabasePath is the path of the local SQLite database holding the
	// viewed-items record.
	DatabasePath string

	// FreshnessWindow is how long after creation an unseen story still
	// counts as new.
	FreshnessWindow time.Duration

	// ExpiryWarnThreshold is how close to expiry a story must be before a
	// local warning is raised for its owner.
	ExpiryWarnThreshold time.Duration

	// StoryPollInterval is how often the expiry-warning loop re-checks the
	// viewer's own stories.
	StoryPollInterval time.Duration

	// MaxReconnectAttempts bounds reconnection after an unexpected
	// disconnect before giving up.
	MaxReconnectAttempts int

	// BaseBackoffDelay is multiplied by the attempt number to compute the
	// reconnect delay.
	BaseBackoffDelay time.Duration

	// TypingTimeout is how long a typing indicator stays lit without a
	// follow-up event.
	TypingTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		LiveURL:              "ws://localhost:8000/ws",
		APIBaseURL:           "http://localhost:8000",
		DatabasePath:         "social-live.db",
		FreshnessWindow:      24 * time.Hour,
		ExpiryWarnThreshold:  time.Hour,
		StoryPollInterval:    time.Minute,
		MaxReconnectAttempts: 5,
		BaseBackoffDelay:     time.Second,
		TypingTimeout:        5 * time.Second,
	}

	if v := os.Getenv("SOCIAL_LIVE_URL"); v != "" {
		cfg.LiveURL = v
	}
	if v := os.Getenv("SOCIAL_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("SOCIAL_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	var err error
	if cfg.FreshnessWindow, err = durationEnv("SOCIAL_FRESHNESS_WINDOW", cfg.FreshnessWindow); err != nil {
		return nil, err
	}
	if cfg.ExpiryWarnThreshold, err = durationEnv("SOCIAL_EXPIRY_WARN_THRESHOLD", cfg.ExpiryWarnThreshold); err != nil {
		return nil, err
	}
	if cfg.StoryPollInterval, err = durationEnv("SOCIAL_STORY_POLL_INTERVAL", cfg.StoryPollInterval); err != nil {
		return nil, err
	}
	if cfg.BaseBackoffDelay, err = durationEnv("SOCIAL_BASE_BACKOFF", cfg.BaseBackoffDelay); err != nil {
		return nil, err
	}
	if cfg.TypingTimeout, err = durationEnv("SOCIAL_TYPING_TIMEOUT", cfg.TypingTimeout); err != nil {
		return nil, err
	}

	if v := os.Getenv("SOCIAL_MAX_RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SOCIAL_MAX_RECONNECT_ATTEMPTS: %w", err)
		}
		if n < 1 {
			return nil, fmt.Errorf("SOCIAL_MAX_RECONNECT_ATTEMPTS must be at least 1, got %d", n)
		}
		cfg.MaxReconnectAttempts = n
	}

	return cfg, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
