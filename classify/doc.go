// Package classify maps raw remote-call failures into a closed set of
// typed, retryable outcomes.
//
// Four kinds exist: flood-wait (the remote protocol layer explicitly asked
// for a pause), rate-limited (generic HTTP 429 throttling), transient
// (infrastructure failures worth retrying), and fatal (everything else).
// Classification is a pure function over the error chain; the retry policy
// in package retry is total over the resulting Kind.
package classify
