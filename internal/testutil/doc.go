// Package testutil provides testing utilities for floodgate.
//
// This package is intended for internal testing only and should not be
// imported by external packages.
//
// # Mock upstream server
//
// MockUpstream serves the envelope protocol the gateway speaks and the
// scripting client consumes:
//
//	server := testutil.NewMockUpstream(t)
//	server.On("POST", "/messages/send", func(w http.ResponseWriter, r *http.Request) {
//	    testutil.ReplyMessage(w, 123)
//	})
//	// Use server.BaseURL() as the client base URL
//
// # Fake time
//
// FakeClock advances only when told; FakeSleeper records every sleep and
// (when coupled to a FakeClock) advances it, so throttle clearance and
// backoff logic can be tested without real delays:
//
//	clk := testutil.NewFakeClock()
//	sleeper := testutil.NewFakeSleeper(clk)
package testutil
