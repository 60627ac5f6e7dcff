// Package library is the facade over the index store, the listing cache,
// and the reconciler. It owns the invalidation hooks that keep cache and
// index consistent with filesystem mutations (create, delete, move, and
// untyped change events), and the fsnotify watcher that feeds them.
//
// Moves within the library roots rewrite index paths in place so that
// first-indexed timestamps and enrichment state survive the rename. Moves
// across the root boundary degrade to a create or a delete. Paths under
// the staging directory are exempt from both caching and indexing, so
// events there are ignored.
package library
