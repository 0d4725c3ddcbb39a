// Package workflow executes stage-sequenced agent runs over live sessions.
//
// # Overview
//
// A run walks a resolved list of agents in order. Each stage invokes one
// agent with the original prompt plus the artifacts of earlier stages,
// streams progress and result envelopes to the owning session, and
// persists the artifact when a store is configured. Agents never fail a
// run: unavailability and exhausted retries surface as role-specific
// fallback content, so every accepted run produces a result per stage.
//
// # Busy policy
//
// A session has at most one active run. A chat_request arriving while one
// is running is either rejected with an error envelope or queued FIFO up
// to a configured depth, depending on the on_busy policy. Runs for
// different sessions are fully independent and execute on their own
// goroutines, so inference never blocks a session's read loop or
// heartbeats.
package workflow
