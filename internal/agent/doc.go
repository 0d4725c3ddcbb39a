// Package agent models the inference agents that execute workflow stages.
//
// # Overview
//
// An Agent binds a name and a role to one Ollama model. Roles are a closed
// enum: each carries a prompt builder and a deterministic fallback, and a
// roster entry naming an unknown role fails at load time rather than at
// run time.
//
// # Invoke
//
// Invoke never fails. An unavailable model short-circuits to the role's
// fallback; a reachable model gets Retries+1 bounded attempts with a fixed
// backoff between them, and exhaustion also falls back. Either way the
// caller receives a non-empty, identity-decorated result, so a workflow
// always produces an artifact per stage.
//
// # Availability
//
// Availability probes (/api/tags) are cached per agent for a configured
// window. A failed probe counts as unavailable until the cache expires.
//
// # Roster
//
// The Roster owns the built-in agents and merges an optional TOML file
// over them: entries with a known name replace the built-in, new names
// append. Order is preserved so workflows run stages in the order the
// client selected.
package agent
