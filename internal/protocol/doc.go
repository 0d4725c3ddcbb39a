// ABOUTME: Package documentation for the wire protocol shared by all components.
// ABOUTME: Describes envelope semantics and the inbound message surface.

// Package protocol defines the typed envelopes pushed to clients over a
// session's WebSocket and the inbound messages clients send.
//
// Every outbound envelope carries a "type" discriminator and an RFC3339
// timestamp. Envelopes are immutable values; constructing one never fails,
// and they are the only unit ever written to a session.
//
// Inbound messages are deliberately small: chat_request starts a workflow,
// ping asks for a pong, get_agents asks for the roster, and heartbeat_ack
// refreshes liveness without any reply.
package protocol
