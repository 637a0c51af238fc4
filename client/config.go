package client

import (
	"os"
	"strconv"
	"time"
)

// Config holds scripting-client configuration.
type Config struct {
	// API settings
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	KeepAlive      time.Duration
	MaxIdleConns   int
	IdleTimeout    time.Duration

	// Throttling
	MinRequestInterval time.Duration
	PerChatInterval    time.Duration
	EditsPerSecond     int
	EditsPerHour       int

	// Retry settings
	MaxRetries int

	// Circuit breaker
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:            "http://localhost:8080",
		RequestTimeout:     30 * time.Second,
		KeepAlive:          30 * time.Second,
		MaxIdleConns:       100,
		IdleTimeout:        90 * time.Second,
		MinRequestInterval: 200 * time.Millisecond,
		PerChatInterval:    time.Second,
		EditsPerSecond:     5,
		EditsPerHour:       120,
		MaxRetries:         3,
		BreakerMaxRequests: 5,
		BreakerInterval:    60 * time.Second,
		BreakerTimeout:     30 * time.Second,
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if url := getEnv("FLOODGATE_BASE_URL", ""); url != "" {
		cfg.BaseURL = url
	}

	cfg.APIKey = getEnv("FLOODGATE_API_KEY", "")

	if d, err := time.ParseDuration(getEnv("FLOODGATE_REQUEST_TIMEOUT", "30s")); err == nil {
		cfg.RequestTimeout = d
	}

	if d, err := time.ParseDuration(getEnv("FLOODGATE_MIN_REQUEST_INTERVAL", "200ms")); err == nil {
		cfg.MinRequestInterval = d
	}

	if d, err := time.ParseDuration(getEnv("FLOODGATE_PER_CHAT_INTERVAL", "1s")); err == nil {
		cfg.PerChatInterval = d
	}

	if i, err := strconv.Atoi(getEnv("FLOODGATE_EDITS_PER_SECOND", "5")); err == nil {
		cfg.EditsPerSecond = i
	}

	if i, err := strconv.Atoi(getEnv("FLOODGATE_EDITS_PER_HOUR", "120")); err == nil {
		cfg.EditsPerHour = i
	}

	if i, err := strconv.Atoi(getEnv("FLOODGATE_MAX_RETRIES", "3")); err == nil {
		cfg.MaxRetries = i
	}

	if i, err := strconv.ParseUint(getEnv("FLOODGATE_BREAKER_MAX_REQUESTS", "5"), 10, 32); err == nil {
		cfg.BreakerMaxRequests = uint32(i)
	}

	if d, err := time.ParseDuration(getEnv("FLOODGATE_BREAKER_INTERVAL", "60s")); err == nil {
		cfg.BreakerInterval = d
	}

	if d, err := time.ParseDuration(getEnv("FLOODGATE_BREAKER_TIMEOUT", "30s")); err == nil {
		cfg.BreakerTimeout = d
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
