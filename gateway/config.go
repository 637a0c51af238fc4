package gateway

import (
	"os"
	"strconv"
	"time"
)

// Config holds gateway configuration.
type Config struct {
	// HTTP server
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// APIKey, when set, is required in the X-API-Key header of every
	// request except /health.
	APIKey string

	// Inbound rate limiting (token bucket, per process)
	RateLimitRPS   float64
	RateLimitBurst int

	// Outbound protection
	MinRequestInterval time.Duration
	PerChatInterval    time.Duration
	EditsPerSecond     int
	EditsPerHour       int
	MaxRetries         int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:         ":8090",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       2 * time.Minute, // handlers may hold for throttle clearance
		IdleTimeout:        60 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		RateLimitRPS:       20,
		RateLimitBurst:     40,
		MinRequestInterval: 200 * time.Millisecond,
		PerChatInterval:    time.Second,
		EditsPerSecond:     5,
		EditsPerHour:       120,
		MaxRetries:         3,
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if addr := getEnv("GATEWAY_LISTEN_ADDR", ""); addr != "" {
		cfg.ListenAddr = addr
	}

	cfg.APIKey = getEnv("GATEWAY_API_KEY", "")

	if d, err := time.ParseDuration(getEnv("GATEWAY_READ_TIMEOUT", "15s")); err == nil {
		cfg.ReadTimeout = d
	}

	if d, err := time.ParseDuration(getEnv("GATEWAY_WRITE_TIMEOUT", "2m")); err == nil {
		cfg.WriteTimeout = d
	}

	if d, err := time.ParseDuration(getEnv("GATEWAY_SHUTDOWN_TIMEOUT", "10s")); err == nil {
		cfg.ShutdownTimeout = d
	}

	if f, err := strconv.ParseFloat(getEnv("GATEWAY_RATE_LIMIT_RPS", "20"), 64); err == nil && f > 0 {
		cfg.RateLimitRPS = f
	}

	if i, err := strconv.Atoi(getEnv("GATEWAY_RATE_LIMIT_BURST", "40")); err == nil && i > 0 {
		cfg.RateLimitBurst = i
	}

	if d, err := time.ParseDuration(getEnv("GATEWAY_MIN_REQUEST_INTERVAL", "200ms")); err == nil {
		cfg.MinRequestInterval = d
	}

	if d, err := time.ParseDuration(getEnv("GATEWAY_PER_CHAT_INTERVAL", "1s")); err == nil {
		cfg.PerChatInterval = d
	}

	if i, err := strconv.Atoi(getEnv("GATEWAY_EDITS_PER_SECOND", "5")); err == nil {
		cfg.EditsPerSecond = i
	}

	if i, err := strconv.Atoi(getEnv("GATEWAY_EDITS_PER_HOUR", "120")); err == nil {
		cfg.EditsPerHour = i
	}

	if i, err := strconv.Atoi(getEnv("GATEWAY_MAX_RETRIES", "3")); err == nil {
		cfg.MaxRetries = i
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
