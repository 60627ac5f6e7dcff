// Package index implements the persistent file index backed by SQLite.
//
// One row exists per filesystem entry (file or directory) under the
// configured library roots, carrying identity, size, timestamps, parent
// linkage, a thumbnail flag, and an enrichment scan status. Enrichment
// key/value pairs attached by the downstream metadata scanner live in a
// separate table so routine re-syncs never overwrite them.
//
// The store is the single durable source of truth for search and survives
// process restarts. Writers are the reconciler and the invalidation hooks;
// request handlers read concurrently. WAL journaling plus a busy timeout
// implements the one-writer/many-readers policy; write-write conflicts on
// the same path resolve last-write-wins.
package index
