// Package ir provides the catalog data model shared by the compiler, the
// content resolver, the convergence engine and the stores.
//
// This package contains type definitions and identity functions only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - A Catalog is immutable once compiled; its VersionToken never changes
//   - Content is bound to a catalog through FileMetadata (content URIs), never
//     through mutable source paths
//   - Catalog digests use canonical JSON (sorted keys, NFC strings, no floats)
//   - All JSON tags use snake_case
package ir
