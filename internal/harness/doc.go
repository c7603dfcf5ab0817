// Package harness runs keel acceptance scenarios.
//
// A scenario drives the real compiler, engine and agent against a scratch
// directory and checks the run reports and the resulting filesystem.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: cached_catalog_remediation
//	description: "A cached catalog restores the content it was compiled with"
//	node: web01
//	tokens: [code-1, code-2]
//	modules:
//	  app/app.conf: code_version_1
//	manifest: |
//	  file: "{{target}}/app.conf": source: "keel:///modules/app/app.conf"
//	steps:
//	  - run: live
//	    expect:
//	      status: changes applied
//	      changed: ["created app.conf"]
//	  - write_modules: { app/app.conf: code_version_2 }
//	    remove_target: [app.conf]
//	    run: compile
//	  - run: cached
//	    expect:
//	      version: code-1
//	assertions:
//	  - type: file
//	    path: app.conf
//	    content: code_version_1
//
// {{target}} in the manifest expands to the scratch target directory.
// Module files are keyed by <module>/<path> and land in
// <module>/files/<path> on the module path. Paths in expectations and
// assertions are relative to the target directory.
//
// # Step Types
//
// A step performs every action it names, in this order: manifest,
// write_modules, touch_modules, write_target, remove_target,
// evict_content, run.
//
// run is live, cached, local or compile. A compile step builds the next
// catalog without caching or applying it; it only reports the version.
//
// # Assertion Types
//
//   - file: the target is a regular file with the given content
//   - absent: the target does not exist
//   - directory: the target is a directory
//   - mode: the target has the given permission bits
//   - state: the recorded state has the given version and checksum type
//
// # Deterministic Testing
//
// Version tokens come from the scenario's token list. Module file times
// and report timestamps come from testutil.DeterministicClock, so traces
// are identical across runs and can be compared with golden files.
package harness
