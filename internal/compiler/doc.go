// Package compiler turns CUE manifests into sealed catalogs.
//
// A manifest declares file resources at the top level (applied to every
// node) and per node, with a "default" node block used when a node has no
// block of its own:
//
//	file: "/etc/motd": content: "managed by keel\n"
//
//	node: "web01": file: "/srv/app/app.conf": {
//		source:   "keel:///modules/app/app.conf"
//		checksum: "mtime"
//		mode:     "0640"
//	}
//
//	node: default: file: "/srv/app": {
//		ensure:  "directory"
//		source:  "keel:///modules/app/tree"
//		recurse: true
//	}
//
// Every compile assigns a fresh version token and binds each source to the
// bytes it holds at that moment: the bytes are copied into the content
// store and the resulting content URIs and fingerprints are recorded in the
// declaration's metadata. Replaying the catalog later reproduces exactly
// those bytes.
package compiler
