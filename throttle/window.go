package throttle

import (
	"sync"
	"time"

	"github.com/prilive-com/floodgate/internal/clock"
)

// rateWindow is a single rate counter. tryPass is evaluated under the
// window's own lock; the registry never holds one window's lock while
// touching another, so waiting on one key cannot delay an unrelated key.
type rateWindow interface {
	// tryPass reports whether the window is clear at now. If clear, the
	// event is recorded and (0, true) is returned. Otherwise it returns
	// the duration the caller should sleep before re-evaluating.
	tryPass(now time.Time) (time.Duration, bool)
}

// spacingWindow enforces a minimum interval between consecutive events.
type spacingWindow struct {
	mu          sync.Mutex
	minInterval time.Duration
	jitterMax   time.Duration
	jitter      clock.JitterFunc
	last        time.Time
	hasLast     bool
}

func newSpacingWindow(minInterval, jitterMax time.Duration, jitter clock.JitterFunc) *spacingWindow {
	return &spacingWindow{
		minInterval: minInterval,
		jitterMax:   jitterMax,
		jitter:      jitter,
	}
}

func (w *spacingWindow) tryPass(now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.hasLast {
		if elapsed := now.Sub(w.last); elapsed < w.minInterval {
			// Jitter desynchronizes concurrent callers converging on
			// the same key.
			return w.minInterval - elapsed + w.jitter(w.jitterMax), false
		}
	}

	w.last = now
	w.hasLast = true
	return 0, true
}

// capacityWindow enforces a maximum event count over a trailing window.
type capacityWindow struct {
	mu        sync.Mutex
	maxEvents int
	window    time.Duration
	events    []time.Time
}

func newCapacityWindow(maxEvents int, window time.Duration) *capacityWindow {
	return &capacityWindow{
		maxEvents: maxEvents,
		window:    window,
	}
}

func (w *capacityWindow) tryPass(now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Purge events that have left the trailing window.
	cutoff := now.Add(-w.window)
	kept := w.events[:0]
	for _, ts := range w.events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.events = kept

	if len(w.events) >= w.maxEvents {
		// Wait until the oldest retained event exits the window, then
		// the caller re-evaluates.
		return w.events[0].Add(w.window).Sub(now), false
	}

	w.events = append(w.events, now)
	return 0, true
}
