// Package scanner walks the configured library roots and produces
// normalized snapshots of their current contents.
//
// The scanner is a pure producer: it never touches the index store or the
// listing cache. For each surviving entry it emits name, path, parent, type,
// size, modification time, and a cheap "has a companion thumbnail" flag
// derived from sibling names collected during the walk.
//
// Hidden entries (names starting with '.' or '_') and the configured
// staging subtree are skipped. Unreadable subtrees are logged and skipped
// rather than failing the scan; roots that are unavailable are reported
// separately so the reconciler can leave their indexed contents alone.
package scanner
