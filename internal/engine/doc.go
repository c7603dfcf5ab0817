// Package engine converges the local filesystem onto a catalog.
//
// For every managed path the engine compares the target against the
// fingerprint the catalog expects, using the resource's checksum strategy,
// and rewrites the target only when they differ. A second cycle over an
// unchanged catalog and filesystem therefore performs no writes.
//
// Apply runs in two phases:
//
//  1. Resolve: every declaration is resolved to content locators on a
//     bounded pool of workers.
//  2. Converge: locators are applied one at a time in target path order,
//     so a directory is always created before anything inside it.
//
// Failures are scoped to the resource that caused them. A source that
// cannot be retrieved or a target that cannot be written marks that
// resource failed; every other resource is still converged. The returned
// Report carries the outcome for each path.
//
// Resource state (last fingerprint and version token per path) is written
// only after the corresponding file write succeeded, so an interrupted
// cycle is repaired by the next one.
package engine
