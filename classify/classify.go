package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the closed set of failure classifications.
type Kind uint8

const (
	// KindFloodWait means the remote protocol layer demanded a pause of a
	// known duration before the operation may be repeated.
	KindFloodWait Kind = iota

	// KindRateLimited means a generic HTTP 429 throttling signal.
	KindRateLimited

	// KindTransient means an infrastructure-level failure (timeout, 5xx)
	// that may succeed on retry.
	KindTransient

	// KindFatal means the failure is not retryable.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindFloodWait:
		return "flood_wait"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// DefaultRetryAfter is assumed when a 429 carries no retry_after hint.
const DefaultRetryAfter = time.Second

// Outcome is the classification of one failure. Wait carries the remote's
// demanded pause (flood-wait) or retry hint (rate-limited, transient); it
// is zero for fatal outcomes.
type Outcome struct {
	Kind  Kind
	Wait  time.Duration
	Cause error
}

// Retryable reports whether the retry policy may repeat the operation.
func (o Outcome) Retryable() bool { return o.Kind != KindFatal }

// The interfaces Classify probes the error chain for, via errors.As.
// Adapters expose these on their transport error types instead of making
// this package depend on any particular transport.
type (
	floodWaiter interface{ FloodWait() time.Duration }
	statusCoder interface{ HTTPStatus() int }
	retryHinter interface{ RetryAfter() time.Duration }
	waitHinter  interface{ Wait() time.Duration }
)

var floodWaitPattern = regexp.MustCompile(`FLOOD_WAIT[_\s]+(\d+)`)

// Classify maps a non-nil remote-call failure into an Outcome. It is pure:
// no side effects, no blocking, and classifying the same error twice yields
// the same Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: KindFatal}
	}

	// Cancellation belongs to the caller, never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: KindFatal, Cause: err}
	}

	// Typed flood-control signal.
	var fw floodWaiter
	floodSignal := errors.As(err, &fw)
	if floodSignal {
		if wait := fw.FloodWait(); wait > 0 {
			return Outcome{Kind: KindFloodWait, Wait: wait, Cause: err}
		}
	}

	// Textual FLOOD_WAIT_<n> fallback.
	text := strings.ToUpper(err.Error())
	if m := floodWaitPattern.FindStringSubmatch(text); m != nil {
		if secs, convErr := strconv.Atoi(m[1]); convErr == nil {
			return Outcome{Kind: KindFloodWait, Wait: time.Duration(secs) * time.Second, Cause: err}
		}
	}

	// A flood signal whose duration cannot be recovered is not retryable:
	// guessing a wait risks hammering an account already being throttled.
	if floodSignal || strings.Contains(text, "FLOOD_WAIT") {
		return Outcome{Kind: KindFatal, Cause: err}
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch code := sc.HTTPStatus(); {
		case code == http.StatusTooManyRequests:
			wait := DefaultRetryAfter
			var rh retryHinter
			var wh waitHinter
			if errors.As(err, &rh) && rh.RetryAfter() > 0 {
				wait = rh.RetryAfter()
			} else if errors.As(err, &wh) && wh.Wait() > 0 {
				wait = wh.Wait()
			}
			return Outcome{Kind: KindRateLimited, Wait: wait, Cause: err}
		case code >= 500 && code <= 599:
			return Outcome{Kind: KindTransient, Wait: DefaultRetryAfter, Cause: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Outcome{Kind: KindTransient, Wait: DefaultRetryAfter, Cause: err}
	}

	return Outcome{Kind: KindFatal, Cause: err}
}
