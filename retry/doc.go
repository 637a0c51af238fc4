// Package retry wraps single remote-call attempts with throttle clearance,
// failure classification, and bounded exponential backoff.
//
// All retry decisions resolve inside Execute; only a success value or a
// final classified error crosses back to the caller.
package retry
