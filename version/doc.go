// Package version provides the per-entity revision counter used by the sync engine.
//
// A RevisionID is an opaque, monotonically increasing counter that identifies
// a local edit generation of a single entity. It has an explicit Unset state
// for entities that were never modified locally.
//
// # Basic Usage
//
//	rev := version.Unset
//	rev = version.Next(rev) // 1
//	rev = rev.Next()        // 2
//
//	version.Match(version.Unset, version.Unset) // true
//	version.Match(version.At(0), version.Unset) // false
//
// Revisions are compared only for equality. The sync engine relies on that
// equality to discard acknowledgments that answer an older edit.
package version
