package library

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bpepple/clu-comics-sub000/internal/config"
	"github.com/bpepple/clu-comics-sub000/internal/index"
	"github.com/bpepple/clu-comics-sub000/internal/listcache"
	"github.com/bpepple/clu-comics-sub000/internal/logging"
	"github.com/bpepple/clu-comics-sub000/internal/reconcile"
)

// Library is the facade over the index store, the listing cache, and the
// reconciler. Request handlers and the filesystem watcher talk only to it.
type Library struct {
	store      *index.Store
	cache      *listcache.Cache
	reconciler *reconcile.Reconciler
	roots      []string
	stagingDir string

	mu               sync.RWMutex
	lastInvalidation time.Time
}

// New wires the facade together. roots and stagingDir must be normalized
// absolute forward-slash paths.
func New(store *index.Store, cache *listcache.Cache, rec *reconcile.Reconciler, roots []string, stagingDir string) *Library {
	return &Library{
		store:      store,
		cache:      cache,
		reconciler: rec,
		roots:      roots,
		stagingDir: stagingDir,
	}
}

// ListDirectory returns the pre-joined browse listing for a directory:
// child directories with aggregate counts, child files with sizes. Answers
// are cached under the browse namespace (TTL-validated). On failure the
// listing is empty and the error is set; a partial listing is never
// returned as success.
func (l *Library) ListDirectory(ctx context.Context, dirPath string) (listcache.Listing, error) {
	dirPath = config.NormalizePath(dirPath)

	key := listcache.Key{NS: listcache.NSBrowse, Path: dirPath}
	if listing, ok := l.cache.Get(key); ok {
		return listing, nil
	}

	listing, err := l.buildBrowseListing(ctx, dirPath)
	if err != nil {
		return listcache.Listing{Path: dirPath}, err
	}

	l.cache.Put(key, listing)
	return listing, nil
}

func (l *Library) buildBrowseListing(ctx context.Context, dirPath string) (listcache.Listing, error) {
	dirs, files, err := l.store.Children(ctx, dirPath)
	if err != nil {
		return listcache.Listing{}, fmt.Errorf("failed to list %s: %w", dirPath, err)
	}

	listing := listcache.Listing{Path: dirPath}

	if len(dirs) > 0 {
		parents := make([]string, len(dirs))
		for i := range dirs {
			parents[i] = dirs[i].Path
		}
		counts, err := l.store.CountsUnder(ctx, parents)
		if err != nil {
			return listcache.Listing{}, fmt.Errorf("failed to count children of %s: %w", dirPath, err)
		}
		for i := range dirs {
			c := counts[dirs[i].Path]
			listing.Directories = append(listing.Directories, listcache.DirInfo{
				Name:       dirs[i].Name,
				Path:       dirs[i].Path,
				Subfolders: c.Subfolders,
				Files:      c.Files,
			})
		}
	}

	for i := range files {
		listing.Files = append(listing.Files, listcache.FileInfo{
			Name:         files[i].Name,
			Path:         files[i].Path,
			Size:         files[i].Size,
			HasThumbnail: files[i].HasThumbnail,
		})
	}

	return listing, nil
}

// ReadDirectory returns the live filesystem contents of a directory,
// memoized under the raw listing namespace (fingerprint-revalidated). The
// filesystem read happens outside the cache lock.
func (l *Library) ReadDirectory(dirPath string) (listcache.Listing, error) {
	dirPath = config.NormalizePath(dirPath)

	key := listcache.Key{NS: listcache.NSList, Path: dirPath}
	if listing, ok := l.cache.Get(key); ok {
		return listing, nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return listcache.Listing{Path: dirPath}, fmt.Errorf("failed to read %s: %w", dirPath, err)
	}

	listing := listcache.Listing{Path: dirPath}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		childPath := dirPath + "/" + name
		if entry.IsDir() {
			listing.Directories = append(listing.Directories, listcache.DirInfo{
				Name: name,
				Path: childPath,
			})
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logging.Debug("Skipping %s: %v", childPath, err)
			continue
		}
		listing.Files = append(listing.Files, listcache.FileInfo{
			Name: name,
			Path: childPath,
			Size: info.Size(),
		})
	}

	l.cache.Put(key, listing)
	return listing, nil
}

// SearchIndex performs a case-insensitive substring search against indexed
// names.
func (l *Library) SearchIndex(ctx context.Context, query string, limit int) ([]index.Entry, error) {
	return l.store.Search(ctx, query, limit)
}

// Rebuild runs a synchronous full reconciliation pass. Callers run it off
// the critical request path.
func (l *Library) Rebuild(ctx context.Context) (reconcile.Summary, error) {
	return l.reconciler.Rebuild(ctx)
}

// LastRebuild returns the completion time of the most recent
// reconciliation pass, zero if none has finished yet.
func (l *Library) LastRebuild() time.Time {
	return l.reconciler.LastRebuild()
}

// Rebuilding reports whether a reconciliation pass is in flight.
func (l *Library) Rebuilding() bool {
	return l.reconciler.IsRunning()
}

// insideRoots reports whether a path lies under any configured library root.
func (l *Library) insideRoots(p string) bool {
	for _, root := range l.roots {
		if p == root || strings.HasPrefix(p, root+"/") {
			return true
		}
	}
	return false
}

// critical reports whether a path is exempt from invalidation and indexing.
// The staging folder is never cached or indexed, so invalidating under it
// is a guaranteed no-op.
func (l *Library) critical(p string) bool {
	if l.stagingDir == "" {
		return false
	}
	return p == l.stagingDir || strings.HasPrefix(p, l.stagingDir+"/")
}

func (l *Library) markInvalidation() {
	l.mu.Lock()
	l.lastInvalidation = time.Now()
	l.mu.Unlock()
}

// Status is the read-only operational snapshot for the dashboard.
type Status struct {
	CacheEntries  int                `json:"cacheEntries"`
	CacheCapacity int                `json:"cacheCapacity"`
	CacheHitRate  float64            `json:"cacheHitRate"`
	Cache         listcache.Counters `json:"cache"`

	Index index.Stats `json:"index"`

	Rebuilding          bool      `json:"rebuilding"`
	LastRebuild         time.Time `json:"lastRebuild,omitempty"`
	LastInvalidation    time.Time `json:"lastInvalidation,omitempty"`
	SinceLastInvalidate string    `json:"sinceLastInvalidation,omitempty"`
}

// Status reports cache size and hit rate, last rebuild time, and time since
// the last invalidation.
func (l *Library) Status(ctx context.Context) Status {
	counters := l.cache.Stats()

	status := Status{
		CacheEntries:  l.cache.Len(),
		CacheCapacity: l.cache.Capacity(),
		Cache:         counters,
		Rebuilding:    l.reconciler.IsRunning(),
		LastRebuild:   l.reconciler.LastRebuild(),
	}

	if total := counters.Hits + counters.Misses; total > 0 {
		status.CacheHitRate = float64(counters.Hits) / float64(total)
	}

	l.mu.RLock()
	status.LastInvalidation = l.lastInvalidation
	l.mu.RUnlock()
	if !status.LastInvalidation.IsZero() {
		status.SinceLastInvalidate = time.Since(status.LastInvalidation).Round(time.Second).String()
	}

	if stats, err := l.store.CalculateStats(ctx); err == nil {
		status.Index = stats
	}

	return status
}

// entryFromStat builds an index entry for a single live path, including the
// cheap sibling-thumbnail check.
func entryFromStat(p string) (*index.Entry, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}

	entry := &index.Entry{
		Name:    path.Base(p),
		Path:    p,
		Parent:  path.Dir(p),
		ModTime: info.ModTime().Unix(),
	}
	if info.IsDir() {
		entry.Type = index.EntryTypeDirectory
		entry.HasThumbnail = coverExists(p)
	} else {
		entry.Type = index.EntryTypeFile
		entry.Size = info.Size()
		stem := strings.TrimSuffix(p, path.Ext(p))
		entry.HasThumbnail = siblingImageExists(stem)
	}
	return entry, nil
}

var coverExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

func coverExists(dir string) bool {
	for _, ext := range coverExtensions {
		if _, err := os.Stat(dir + "/cover" + ext); err == nil {
			return true
		}
	}
	return false
}

func siblingImageExists(stem string) bool {
	for _, ext := range coverExtensions {
		if _, err := os.Stat(stem + ext); err == nil {
			return true
		}
	}
	return false
}
