// Package floodgate is a protective throttling and backoff shim placed in
// front of a Telegram-style messaging API.
//
// Its core is a Shield: one throttle registry (per-resource rate counters)
// paired with one retry orchestrator (classification, bounded exponential
// backoff). Every remote-affecting operation clears the relevant throttle
// keys before the call and reports failures back for retry decisions, so no
// caller can push the remote account into a flood block.
//
// Three entry-point adapters ship in subpackages, one per transport:
//
//   - client: a scripting client speaking the HTTP envelope protocol
//   - gateway: an HTTP gateway exposing the operations as REST routes
//   - toolserver: a JSON-RPC tool server for tool-calling agents
//
// Each adapter owns its own Shield. Adapters never share throttle state:
// the same account operated through two adapters at once is throttled
// independently by each, and consumers needing stricter global ordering
// must coordinate outside this module.
package floodgate
