package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/bpepple/clu-comics-sub000/internal/config"
	"github.com/bpepple/clu-comics-sub000/internal/index"
	"github.com/bpepple/clu-comics-sub000/internal/logging"
	"github.com/bpepple/clu-comics-sub000/internal/metrics"
)

// evictAround drops every cached answer the change at p could have made
// stale: both namespace entries for p itself, everything under p, and the
// parent listing that names p.
func (l *Library) evictAround(p string) {
	l.cache.InvalidateTree(p)
	if parent := path.Dir(p); parent != p {
		l.cache.Invalidate(parent)
	}
	l.markInvalidation()
}

// Invalidate handles a change at a path whose nature is unknown: cached
// answers are evicted and the index row is refreshed from a live stat. A
// path that no longer exists is removed from the index, subtree included.
func (l *Library) Invalidate(ctx context.Context, p string) error {
	p = config.NormalizePath(p)
	if l.critical(p) {
		logging.Debug("Ignoring invalidation under staging dir: %s", p)
		return nil
	}
	metrics.InvalidationsTotal.WithLabelValues("change").Inc()
	l.evictAround(p)

	if !l.insideRoots(p) {
		return nil
	}
	entry, err := entryFromStat(p)
	if err != nil {
		if os.IsNotExist(err) {
			_, removeErr := l.store.Remove(ctx, p)
			return removeErr
		}
		return fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return l.upsertOne(entry)
}

// OnCreate records a newly created file or directory.
func (l *Library) OnCreate(ctx context.Context, p string) error {
	p = config.NormalizePath(p)
	if l.critical(p) {
		logging.Debug("Ignoring create under staging dir: %s", p)
		return nil
	}
	metrics.InvalidationsTotal.WithLabelValues("create").Inc()
	l.evictAround(p)

	if !l.insideRoots(p) {
		return nil
	}
	entry, err := entryFromStat(p)
	if err != nil {
		// Already gone again; nothing to index.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return l.upsertOne(entry)
}

// OnDelete records a removed file or directory. Directory removals cascade
// through the indexed subtree.
func (l *Library) OnDelete(ctx context.Context, p string) error {
	p = config.NormalizePath(p)
	if l.critical(p) {
		logging.Debug("Ignoring delete under staging dir: %s", p)
		return nil
	}
	metrics.InvalidationsTotal.WithLabelValues("delete").Inc()
	l.evictAround(p)

	if !l.insideRoots(p) {
		return nil
	}
	removed, err := l.store.Remove(ctx, p)
	if err != nil {
		return err
	}
	if removed > 0 {
		logging.Debug("Removed %d index entries under %s", removed, p)
	}
	return nil
}

// OnMove records a rename. A move within the library rewrites index paths
// in place, preserving first-indexed times and enrichment state; a move in
// from outside is a create, a move out is a delete.
func (l *Library) OnMove(ctx context.Context, oldPath, newPath string) error {
	oldPath = config.NormalizePath(oldPath)
	newPath = config.NormalizePath(newPath)
	if l.critical(oldPath) && l.critical(newPath) {
		logging.Debug("Ignoring move within staging dir: %s -> %s", oldPath, newPath)
		return nil
	}

	oldInside := l.insideRoots(oldPath) && !l.critical(oldPath)
	newInside := l.insideRoots(newPath) && !l.critical(newPath)

	switch {
	case oldInside && newInside:
		metrics.InvalidationsTotal.WithLabelValues("move").Inc()
		l.evictAround(oldPath)
		l.evictAround(newPath)
		return l.moveWithin(ctx, oldPath, newPath)
	case oldInside:
		return l.OnDelete(ctx, oldPath)
	case newInside:
		return l.OnCreate(ctx, newPath)
	default:
		return nil
	}
}

func (l *Library) moveWithin(ctx context.Context, oldPath, newPath string) error {
	entry, err := l.store.Get(ctx, oldPath)
	if err != nil {
		// Never indexed under the old path; index it fresh.
		if errors.Is(err, index.ErrNotFound) {
			return l.OnCreate(ctx, newPath)
		}
		return err
	}

	if entry.Type == index.EntryTypeDirectory {
		return l.store.MoveDirectory(ctx, oldPath, newPath)
	}
	return l.store.MoveFile(ctx, oldPath, newPath)
}

func (l *Library) upsertOne(entry *index.Entry) error {
	tx, err := l.store.BeginBatch()
	if err != nil {
		return err
	}
	return l.store.EndBatch(tx, l.store.Upsert(tx, entry))
}
