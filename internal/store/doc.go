// Package store persists workflow artifacts using SQLite.
//
// # Overview
//
// Every completed workflow stage produces one Artifact: which agent ran,
// against which model, what it produced, and how long it took. Artifacts
// are written best effort by the orchestrator and queried by run or by
// session. The Store interface keeps the orchestrator decoupled from
// SQLite; tests substitute in-memory fakes.
//
// The SQLite implementation uses modernc.org/sqlite (pure Go, no cgo) with
// WAL mode enabled for concurrent reads during writes.
package store
