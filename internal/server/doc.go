// Package server hosts the gateway's external surface.
//
// # Overview
//
// One HTTP listener carries everything: the WebSocket endpoint at
// /ws/{session_id}, health probes, and a small JSON API. The WebSocket
// handler adapts each gorilla connection into a registry transport, runs
// admission, and then services the read loop; all outbound traffic goes
// through the registry so the server never writes to a socket directly.
//
// Admission failures close the socket with a policy-violation close frame
// (1008) carrying the reason, which lets clients distinguish rejection
// from transport trouble. A malformed or unknown inbound message earns an
// error envelope but never closes the session.
package server
