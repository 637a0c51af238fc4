package floodgate

import (
	"context"
	"log/slog"
	"time"

	"github.com/prilive-com/floodgate/internal/clock"
	"github.com/prilive-com/floodgate/retry"
	"github.com/prilive-com/floodgate/throttle"
)

// Shield bundles one throttle registry with one retry orchestrator. Each
// entry-point adapter constructs and privately owns exactly one Shield;
// Shields never share state with each other.
type Shield struct {
	registry *throttle.Registry
	orch     *retry.Orchestrator
}

type shieldConfig struct {
	throttle   throttle.Config
	maxRetries int
	logger     *slog.Logger
	clk        clock.Clock
	sleeper    clock.Sleeper
	jitter     clock.JitterFunc
}

// Option configures a Shield.
type Option func(*shieldConfig)

// WithMinRequestInterval overrides the global request spacing.
func WithMinRequestInterval(d time.Duration) Option {
	return func(c *shieldConfig) { c.throttle.MinRequestInterval = d }
}

// WithPerChatInterval overrides the per-chat send spacing.
func WithPerChatInterval(d time.Duration) Option {
	return func(c *shieldConfig) { c.throttle.PerChatInterval = d }
}

// WithEditLimits overrides the edit capacity limits.
func WithEditLimits(perSecond, perHour int) Option {
	return func(c *shieldConfig) {
		c.throttle.EditsPerSecond = perSecond
		c.throttle.EditsPerHour = perHour
	}
}

// WithMaxRetries overrides the retry budget per operation.
func WithMaxRetries(n int) Option {
	return func(c *shieldConfig) { c.maxRetries = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *shieldConfig) { c.logger = l }
}

// WithClock sets the time source (useful for testing).
func WithClock(clk clock.Clock) Option {
	return func(c *shieldConfig) { c.clk = clk }
}

// WithSleeper sets the suspension mechanism (useful for testing).
func WithSleeper(s clock.Sleeper) Option {
	return func(c *shieldConfig) { c.sleeper = s }
}

// WithJitter sets the jitter source (useful for testing).
func WithJitter(j clock.JitterFunc) Option {
	return func(c *shieldConfig) { c.jitter = j }
}

// New creates a Shield with default limits (200ms global spacing, 1s
// per-chat spacing, 5 edits/s, 120 edits/h, 3 retries).
func New(opts ...Option) *Shield {
	cfg := shieldConfig{
		throttle:   throttle.DefaultConfig(),
		maxRetries: retry.DefaultMaxRetries,
		clk:        clock.System{},
		sleeper:    clock.System{},
		jitter:     clock.Jitter,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	reg := throttle.New(cfg.throttle,
		throttle.WithClock(cfg.clk),
		throttle.WithSleeper(cfg.sleeper),
		throttle.WithJitter(cfg.jitter),
	)
	orch := retry.New(reg,
		retry.WithMaxRetries(cfg.maxRetries),
		retry.WithSleeper(cfg.sleeper),
		retry.WithJitter(cfg.jitter),
		retry.WithLogger(cfg.logger),
	)

	return &Shield{registry: reg, orch: orch}
}

// Registry exposes the underlying throttle registry, mainly for monitoring.
func (s *Shield) Registry() *throttle.Registry { return s.registry }

// Do runs op through s: throttle clearance for every key, then the call,
// then classification and bounded retries on failure.
func Do[T any](s *Shield, ctx context.Context, keys []throttle.Key, op func(context.Context) (T, error)) (T, error) {
	return retry.Execute(s.orch, ctx, keys, op)
}

// SendKeys returns the throttle keys a send-class operation must clear.
func SendKeys(chatID string) []throttle.Key {
	return []throttle.Key{throttle.Global, throttle.PerChat(chatID)}
}

// EditKeys returns the throttle keys an edit must clear.
func EditKeys() []throttle.Key {
	return []throttle.Key{throttle.Global, throttle.EditPerSecond, throttle.EditPerHour}
}

// ReadKeys returns the throttle keys a read-only operation must clear.
func ReadKeys() []throttle.Key {
	return []throttle.Key{throttle.Global}
}
