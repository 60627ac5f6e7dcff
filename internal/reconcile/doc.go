// Package reconcile keeps the persistent index consistent with the live
// filesystem without full rescans destroying per-file enrichment.
//
// A pass takes a fresh scanner snapshot, diffs it against the stored state
// (restricted to roots that passed their existence check), and applies only
// the deltas: new paths are inserted with a fresh first-indexed timestamp,
// orphaned paths are batch-deleted, and unchanged paths are left alone
// unless size or mtime drifted. A path that changed type between scans is
// removed and re-added, with the removal committed first.
//
// Passes are idempotent and safe to interrupt; the next run reaches the
// same end state from a cold diff. Newly indexed paths are handed to the
// enrichment queue so expensive metadata derivation runs only for genuinely
// new content.
package reconcile
