// Package store provides SQLite-backed durable storage for the keel agent.
//
// The store holds three kinds of record:
//   - Catalog cache: the most recently compiled catalog per node
//   - Resource states: last synchronized fingerprint and version per path
//   - Run reports: the summary of each finished apply cycle
//
// # Invariants
//
// The catalog cache keeps exactly one catalog per node. StoreCatalog
// replaces it unconditionally; there is no merge and no version check.
//
// Resource state writes are atomic per path (single-statement upsert). A
// state row is only written after the corresponding file write succeeded.
//
// Catalog bodies are stored as deterministic CBOR and their digest is
// verified on every read, so a damaged cache is reported rather than
// applied.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Memory is an in-process implementation of the same operations for tests
// and for one-shot local applies that should leave no state behind.
package store
