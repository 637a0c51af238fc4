// Package client is the scripting-client entry point: a Go client for the
// envelope-protocol HTTP API, with every remote-affecting call routed
// through a privately owned floodgate Shield.
//
// The client never shares throttle state with the other entry points; see
// the root package docs for the cross-adapter isolation contract.
package client
