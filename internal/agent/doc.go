// Package agent runs apply cycles for one node.
//
// A cycle selects a catalog and hands it to the convergence engine:
//
//   - live: compile the node's catalog, cache it, then apply it. A compile
//     failure aborts the cycle before anything is cached or applied.
//   - cached: apply the node's most recently cached catalog without
//     compiling. Content is resolved through the catalog's bindings, so an
//     older catalog restores the content it was compiled with even after
//     the sources have changed.
//   - local: apply a catalog supplied by the caller. Nothing is cached.
//
// Only one cycle runs per node at a time. When a lock file is configured
// the agent takes an exclusive lock on it for the duration of the cycle
// and fails fast with ErrRunInProgress if another process holds it.
//
// The summary of every finished cycle is persisted as the node's last run
// report.
package agent
