// Package clock provides the time, sleep, and jitter sources shared by the
// throttling and retry layers.
package clock

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Clock supplies the current time. Production code uses System; tests
// substitute a manually advanced clock.
type Clock interface {
	Now() time.Time
}

// Sleeper suspends the calling goroutine for a duration.
//
// Sleep takes no context on purpose: once a clearance or backoff wait has
// started it runs to completion. Callers that need a deadline impose it
// outside the shim by racing the whole call against their own timer.
type Sleeper interface {
	Sleep(d time.Duration)
}

// System is the production Clock and Sleeper backed by real time.
type System struct{}

func (System) Now() time.Time        { return time.Now() }
func (System) Sleep(d time.Duration) { time.Sleep(d) }

// JitterFunc produces a random duration in [0, max). The throttle and retry
// layers take it as a dependency so tests can pin it to a fixed value.
type JitterFunc func(max time.Duration) time.Duration

// Jitter returns a uniform random duration in [0, max).
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return max / 2
	}
	return time.Duration(n.Int64())
}

// NoJitter always returns zero. Useful for callers that need exact spacing.
func NoJitter(time.Duration) time.Duration { return 0 }

// Verify interface compliance.
var (
	_ Clock   = System{}
	_ Sleeper = System{}
)
