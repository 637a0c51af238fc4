package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced time source.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock at an arbitrary fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FakeSleeper records sleep calls without actually sleeping. When coupled
// to a FakeClock, each Sleep advances the clock by the slept duration so
// clearance loops terminate.
type FakeSleeper struct {
	mu    sync.Mutex
	clk   *FakeClock
	calls []time.Duration
}

// NewFakeSleeper creates a FakeSleeper. clk may be nil for pure recording.
func NewFakeSleeper(clk *FakeClock) *FakeSleeper {
	return &FakeSleeper{clk: clk}
}

// Sleep records the duration and advances the coupled clock.
func (f *FakeSleeper) Sleep(d time.Duration) {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	f.mu.Unlock()
	if f.clk != nil {
		f.clk.Advance(d)
	}
}

// Calls returns all recorded sleep durations.
func (f *FakeSleeper) Calls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration{}, f.calls...)
}

// CallCount returns the number of sleep calls.
func (f *FakeSleeper) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// LastCall returns the most recent sleep duration, or 0 if none.
func (f *FakeSleeper) LastCall() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return 0
	}
	return f.calls[len(f.calls)-1]
}

// CallAt returns the sleep duration at the given index, or 0 if out of range.
func (f *FakeSleeper) CallAt(index int) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.calls) {
		return 0
	}
	return f.calls[index]
}

// TotalDuration returns the sum of all sleep durations.
func (f *FakeSleeper) TotalDuration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total time.Duration
	for _, d := range f.calls {
		total += d
	}
	return total
}

// Reset clears all recorded calls.
func (f *FakeSleeper) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = f.calls[:0]
}
