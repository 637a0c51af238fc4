package classify

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors - use with errors.Is()
var (
	ErrFloodWait   = errors.New("floodgate: flood wait required")
	ErrRateLimited = errors.New("floodgate: rate limit exceeded")
	ErrMaxRetries  = errors.New("floodgate: max retries exceeded")
)

// FloodWaitError is the final error surfaced when the remote protocol layer
// demanded a pause and the retry budget ran out.
type FloodWaitError struct {
	Wait    time.Duration
	Message string
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("floodgate: flood wait required: %s (wait=%s)", e.Message, e.Wait)
}

// Unwrap supports errors.Is(err, ErrFloodWait).
func (e *FloodWaitError) Unwrap() error { return ErrFloodWait }

// FloodWait returns the wait the remote demanded.
func (e *FloodWaitError) FloodWait() time.Duration { return e.Wait }

// RetryAfter aliases FloodWait so callers can treat both throttling errors
// through one accessor.
func (e *FloodWaitError) RetryAfter() time.Duration { return e.Wait }

// RateLimitError is the final error surfaced when generic rate limiting
// (HTTP 429) persisted past the retry budget.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("floodgate: rate limit exceeded: %s (retry_after=%s)", e.Message, e.RetryAfter)
}

// Unwrap supports errors.Is(err, ErrRateLimited).
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Wait aliases RetryAfter, mirroring FloodWaitError's accessor pair.
func (e *RateLimitError) Wait() time.Duration { return e.RetryAfter }

// HTTPStatus reports 429 so Classify maps the surfaced error back to the
// rate-limited class it came from.
func (e *RateLimitError) HTTPStatus() int { return http.StatusTooManyRequests }
