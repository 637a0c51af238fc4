// Package throttle implements the outbound rate counters that pace every
// remote-affecting operation.
//
// A Registry holds one independently locked rate window per ThrottleKey.
// Spacing windows (Global, PerChat) enforce a minimum interval between
// consecutive events; capacity windows (EditPerSecond, EditPerHour) enforce
// a maximum event count over a trailing time window. Await blocks until the
// window has room, then records the event.
//
// Registry state is in-memory only and resets on process restart.
package throttle
