package throttle

import (
	"sync"
	"time"

	"github.com/prilive-com/floodgate/internal/clock"
)

// Config holds the rate limits enforced by a Registry.
type Config struct {
	// MinRequestInterval is the spacing between any two requests
	// (Global key). Default 200ms, i.e. at most 5 requests per second.
	MinRequestInterval time.Duration

	// PerChatInterval is the spacing between sends to the same chat.
	// Default 1s.
	PerChatInterval time.Duration

	// EditsPerSecond caps edits over a one-second window. Default 5.
	EditsPerSecond int

	// EditsPerHour caps edits over a one-hour window. Default 120.
	EditsPerHour int

	// SpacingJitter is the upper bound of the random offset added to
	// every spacing wait. Default 50ms.
	SpacingJitter time.Duration
}

// DefaultConfig returns the limits Telegram is known to tolerate.
func DefaultConfig() Config {
	return Config{
		MinRequestInterval: 200 * time.Millisecond,
		PerChatInterval:    time.Second,
		EditsPerSecond:     5,
		EditsPerHour:       120,
		SpacingJitter:      50 * time.Millisecond,
	}
}

// Registry is a set of independent rate counters keyed by ThrottleKey.
// Windows for the static keys exist from construction; per-chat windows are
// created lazily on first use and never destroyed during process lifetime.
//
// State is held in memory only. A restart silently resets all counters.
type Registry struct {
	cfg     Config
	clock   clock.Clock
	sleeper clock.Sleeper
	jitter  clock.JitterFunc

	mu      sync.RWMutex
	perChat map[string]*spacingWindow

	global  *spacingWindow
	editSec *capacityWindow
	editHr  *capacityWindow
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source (useful for testing).
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithSleeper sets the suspension mechanism (useful for testing).
func WithSleeper(s clock.Sleeper) Option {
	return func(r *Registry) { r.sleeper = s }
}

// WithJitter sets the jitter source (useful for testing).
func WithJitter(j clock.JitterFunc) Option {
	return func(r *Registry) { r.jitter = j }
}

// New creates a Registry enforcing cfg. Zero-valued cfg fields fall back to
// DefaultConfig values.
func New(cfg Config, opts ...Option) *Registry {
	def := DefaultConfig()
	if cfg.MinRequestInterval <= 0 {
		cfg.MinRequestInterval = def.MinRequestInterval
	}
	if cfg.PerChatInterval <= 0 {
		cfg.PerChatInterval = def.PerChatInterval
	}
	if cfg.EditsPerSecond <= 0 {
		cfg.EditsPerSecond = def.EditsPerSecond
	}
	if cfg.EditsPerHour <= 0 {
		cfg.EditsPerHour = def.EditsPerHour
	}
	if cfg.SpacingJitter < 0 {
		cfg.SpacingJitter = def.SpacingJitter
	}

	r := &Registry{
		cfg:     cfg,
		clock:   clock.System{},
		sleeper: clock.System{},
		jitter:  clock.Jitter,
		perChat: make(map[string]*spacingWindow),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.global = newSpacingWindow(cfg.MinRequestInterval, cfg.SpacingJitter, r.jitter)
	r.editSec = newCapacityWindow(cfg.EditsPerSecond, time.Second)
	r.editHr = newCapacityWindow(cfg.EditsPerHour, time.Hour)

	return r
}

// Await blocks until the window for key has room, then records the event.
//
// There is no cancellation: once Await starts waiting it runs until
// clearance. No event is recorded until the call actually completes, so an
// abandoned caller (one that raced Await against its own deadline) leaves
// the window untouched.
func (r *Registry) Await(key Key) {
	w := r.window(key)
	for {
		wait, ok := w.tryPass(r.clock.Now())
		if ok {
			return
		}
		r.sleeper.Sleep(wait)
	}
}

// ChatWindowCount returns the number of per-chat windows created so far.
// Useful for monitoring and testing.
func (r *Registry) ChatWindowCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.perChat)
}

func (r *Registry) window(key Key) rateWindow {
	switch key.kind {
	case kindGlobal:
		return r.global
	case kindEditPerSecond:
		return r.editSec
	case kindEditPerHour:
		return r.editHr
	default:
		return r.chatWindow(key.chat)
	}
}

func (r *Registry) chatWindow(chatID string) *spacingWindow {
	r.mu.RLock()
	w, exists := r.perChat[chatID]
	r.mu.RUnlock()

	if exists {
		return w
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if w, exists = r.perChat[chatID]; exists {
		return w
	}

	w = newSpacingWindow(r.cfg.PerChatInterval, r.cfg.SpacingJitter, r.jitter)
	r.perChat[chatID] = w
	return w
}
