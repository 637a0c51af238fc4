// Package gateway is the HTTP entry point: a chi server exposing the
// envelope-protocol messaging API, with every upstream-affecting handler
// routed through a privately owned floodgate Shield.
//
// Inbound traffic is additionally rate limited before it ever reaches the
// shield, so a misbehaving caller is rejected with 429 instead of queueing
// unbounded waits inside the throttle registry.
package gateway
