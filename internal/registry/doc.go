// Package registry owns the set of live client sessions.
//
// # Overview
//
// The Registry is the single arbiter of "is this session alive and
// writable". It performs admission control (id validation, duplicate
// rejection, a live-session ceiling), runs one liveness loop per session,
// and exposes the only outbound write path, so transport failures are
// detected centrally and exactly once.
//
// # Concurrency
//
// The session map and live count are guarded by one mutex; the capacity
// check and registration happen under a single lock acquisition, so
// concurrent Connect calls can never admit more sessions than the ceiling.
// Each session serializes its writes, which preserves envelope order on
// the wire. Disconnect is idempotent and may be called concurrently from
// the liveness loop, the read loop, and the workflow orchestrator.
package registry
