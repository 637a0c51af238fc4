package classify_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prilive-com/floodgate/classify"
)

type stubFloodError struct {
	wait time.Duration
	msg  string
}

func (e *stubFloodError) Error() string            { return e.msg }
func (e *stubFloodError) FloodWait() time.Duration { return e.wait }

type stubHTTPError struct {
	status     int
	retryAfter time.Duration
}

func (e *stubHTTPError) Error() string              { return fmt.Sprintf("http %d", e.status) }
func (e *stubHTTPError) HTTPStatus() int            { return e.status }
func (e *stubHTTPError) RetryAfter() time.Duration  { return e.retryAfter }

type stubTimeoutError struct{}

func (stubTimeoutError) Error() string   { return "i/o timeout" }
func (stubTimeoutError) Timeout() bool   { return true }
func (stubTimeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind classify.Kind
		wantWait time.Duration
	}{
		{
			name:     "typed flood wait",
			err:      &stubFloodError{wait: 42 * time.Second, msg: "slow down"},
			wantKind: classify.KindFloodWait,
			wantWait: 42 * time.Second,
		},
		{
			name:     "textual flood wait",
			err:      errors.New("telegram says FLOOD_WAIT_42"),
			wantKind: classify.KindFloodWait,
			wantWait: 42 * time.Second,
		},
		{
			name:     "lowercase textual flood wait",
			err:      errors.New("flood_wait_7"),
			wantKind: classify.KindFloodWait,
			wantWait: 7 * time.Second,
		},
		{
			name:     "space-separated flood wait",
			err:      errors.New("FLOOD_WAIT 9 seconds"),
			wantKind: classify.KindFloodWait,
			wantWait: 9 * time.Second,
		},
		{
			name:     "wrapped textual flood wait",
			err:      fmt.Errorf("send failed: %w", errors.New("FLOOD_WAIT_300")),
			wantKind: classify.KindFloodWait,
			wantWait: 300 * time.Second,
		},
		{
			name:     "flood signal without recoverable duration",
			err:      &stubFloodError{wait: 0, msg: "flood control engaged"},
			wantKind: classify.KindFatal,
		},
		{
			name:     "textual flood marker without digits",
			err:      errors.New("FLOOD_WAIT but no number"),
			wantKind: classify.KindFatal,
		},
		{
			name:     "429 with hint",
			err:      &stubHTTPError{status: 429, retryAfter: 3 * time.Second},
			wantKind: classify.KindRateLimited,
			wantWait: 3 * time.Second,
		},
		{
			name:     "429 without hint defaults to one second",
			err:      &stubHTTPError{status: 429},
			wantKind: classify.KindRateLimited,
			wantWait: time.Second,
		},
		{
			name:     "500 is transient",
			err:      &stubHTTPError{status: 500},
			wantKind: classify.KindTransient,
			wantWait: time.Second,
		},
		{
			name:     "503 is transient",
			err:      &stubHTTPError{status: 503},
			wantKind: classify.KindTransient,
			wantWait: time.Second,
		},
		{
			name:     "404 is fatal",
			err:      &stubHTTPError{status: 404},
			wantKind: classify.KindFatal,
		},
		{
			name:     "network timeout is transient",
			err:      fmt.Errorf("request failed: %w", stubTimeoutError{}),
			wantKind: classify.KindTransient,
			wantWait: time.Second,
		},
		{
			name:     "context canceled is fatal",
			err:      fmt.Errorf("op: %w", context.Canceled),
			wantKind: classify.KindFatal,
		},
		{
			name:     "deadline exceeded is fatal",
			err:      context.DeadlineExceeded,
			wantKind: classify.KindFatal,
		},
		{
			name:     "unknown error is fatal",
			err:      errors.New("chat not found"),
			wantKind: classify.KindFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := classify.Classify(tt.err)
			assert.Equal(t, tt.wantKind, outcome.Kind)
			assert.Equal(t, tt.wantWait, outcome.Wait)
			assert.Equal(t, tt.err, outcome.Cause)
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	errs := []error{
		&stubFloodError{wait: 10 * time.Second, msg: "flood"},
		&classify.FloodWaitError{Wait: 30 * time.Second, Message: "persistent flood"},
		&classify.RateLimitError{RetryAfter: 2 * time.Second, Message: "persistent 429"},
		&stubHTTPError{status: 429, retryAfter: 5 * time.Second},
		errors.New("FLOOD_WAIT_15"),
	}

	for _, err := range errs {
		first := classify.Classify(err)
		second := classify.Classify(err)
		assert.Equal(t, first, second)
	}
}

// The errors surfaced after budget exhaustion classify back to the class
// that produced them, so stacked shields agree on failure semantics.
func TestSurfacedErrorsReclassify(t *testing.T) {
	flood := classify.Classify(&classify.FloodWaitError{Wait: 30 * time.Second, Message: "gone"})
	assert.Equal(t, classify.KindFloodWait, flood.Kind)
	assert.Equal(t, 30*time.Second, flood.Wait)

	limited := classify.Classify(&classify.RateLimitError{RetryAfter: 2 * time.Second, Message: "gone"})
	assert.Equal(t, classify.KindRateLimited, limited.Kind)
	assert.Equal(t, 2*time.Second, limited.Wait)
}

func TestRetryable(t *testing.T) {
	assert.True(t, classify.Outcome{Kind: classify.KindFloodWait}.Retryable())
	assert.True(t, classify.Outcome{Kind: classify.KindRateLimited}.Retryable())
	assert.True(t, classify.Outcome{Kind: classify.KindTransient}.Retryable())
	assert.False(t, classify.Outcome{Kind: classify.KindFatal}.Retryable())
}

func TestSentinelMatching(t *testing.T) {
	assert.ErrorIs(t, &classify.FloodWaitError{Wait: time.Second}, classify.ErrFloodWait)
	assert.ErrorIs(t, &classify.RateLimitError{RetryAfter: time.Second}, classify.ErrRateLimited)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "flood_wait", classify.KindFloodWait.String())
	assert.Equal(t, "rate_limited", classify.KindRateLimited.String())
	assert.Equal(t, "transient", classify.KindTransient.String())
	assert.Equal(t, "fatal", classify.KindFatal.String())
}
