package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/prilive-com/floodgate/classify"
	"github.com/prilive-com/floodgate/internal/clock"
	"github.com/prilive-com/floodgate/throttle"
)

const (
	// DefaultMaxRetries bounds retries per operation invocation:
	// 3 retries, 4 total attempts.
	DefaultMaxRetries = 3

	// MaxFloodWait clamps any flood-control pause to one hour.
	MaxFloodWait = time.Hour

	// MaxBackoff clamps a single rate-limit/transient backoff wait.
	MaxBackoff = 60 * time.Second

	// floodRetryJitter is the extra random pause added after honoring a
	// flood wait, before the next attempt.
	floodRetryJitter = time.Second
)

// Orchestrator runs operations through a throttle registry with bounded
// retries. The attempt counter is scoped to a single Execute call and never
// shared across invocations.
type Orchestrator struct {
	registry   *throttle.Registry
	maxRetries int
	sleeper    clock.Sleeper
	jitter     clock.JitterFunc
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRetries sets the retry budget per operation.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) { o.maxRetries = n }
}

// WithSleeper sets the suspension mechanism (useful for testing).
func WithSleeper(s clock.Sleeper) Option {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithJitter sets the jitter source (useful for testing).
func WithJitter(j clock.JitterFunc) Option {
	return func(o *Orchestrator) { o.jitter = j }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator backed by reg.
func New(reg *throttle.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:   reg,
		maxRetries: DefaultMaxRetries,
		sleeper:    clock.System{},
		jitter:     clock.Jitter,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Registry returns the throttle registry this orchestrator clears against.
func (o *Orchestrator) Registry() *throttle.Registry { return o.registry }

// Backoff returns the base wait before jitter for a rate-limited or
// transient failure: base doubled per attempt, clamped to MaxBackoff.
// base falls back to classify.DefaultRetryAfter when not positive.
// Pure function, independently testable.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = classify.DefaultRetryAfter
	}
	wait := float64(base) * math.Pow(2, float64(attempt))
	if wait > float64(MaxBackoff) {
		return MaxBackoff
	}
	return time.Duration(wait)
}

// Execute clears every key in keys (in deterministic order), invokes op,
// and on failure classifies the error and retries per policy. Backoff and
// clearance suspensions cannot be cancelled once started; ctx is passed to
// op so the remote call itself still honors the caller's deadline.
func Execute[T any](o *Orchestrator, ctx context.Context, keys []throttle.Key, op func(context.Context) (T, error)) (T, error) {
	var zero T
	ordered := throttle.SortKeys(keys)

	for attempt := 0; ; attempt++ {
		for _, key := range ordered {
			o.registry.Await(key)
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		out := classify.Classify(err)
		switch out.Kind {
		case classify.KindFatal:
			return zero, err

		case classify.KindFloodWait:
			wait := min(out.Wait, MaxFloodWait)
			if attempt >= o.maxRetries {
				return zero, &classify.FloodWaitError{Wait: wait, Message: err.Error()}
			}
			o.logger.Warn("flood wait demanded, honoring",
				"wait", wait,
				"attempt", attempt+1,
			)
			o.sleeper.Sleep(wait + o.jitter(floodRetryJitter))

		default: // KindRateLimited, KindTransient
			if attempt >= o.maxRetries {
				if out.Kind == classify.KindRateLimited {
					return zero, &classify.RateLimitError{RetryAfter: out.Wait, Message: err.Error()}
				}
				return zero, fmt.Errorf("%w: %w", classify.ErrMaxRetries, err)
			}
			backoff := Backoff(out.Wait, attempt)
			backoff += o.jitter(backoff / 4)
			o.logger.Warn("retryable failure, backing off",
				"kind", out.Kind.String(),
				"backoff", backoff,
				"attempt", attempt+1,
			)
			o.sleeper.Sleep(backoff)
		}
	}
}
