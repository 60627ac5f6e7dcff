package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bpepple/clu-comics-sub000/internal/index"
	"github.com/bpepple/clu-comics-sub000/internal/scanner"
)

func setupTestStore(t testing.TB) *index.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := index.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close test store: %v", err)
		}
	})
	return store
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func newTestReconciler(t *testing.T, store *index.Store, roots []string, enqueue EnqueueFunc) *Reconciler {
	t.Helper()
	sc := scanner.New(roots, "")
	return New(store, sc, roots, enqueue, time.Hour)
}

func TestRebuildInitialPopulation(t *testing.T) {
	t.Parallel()

	root := filepath.ToSlash(t.TempDir())
	writeFile(t, filepath.Join(root, "A", "1.cbz"))
	writeFile(t, filepath.Join(root, "A", "2.cbz"))

	store := setupTestStore(t)
	var enqueued []string
	rec := newTestReconciler(t, store, []string{root}, func(paths []string, priority int) {
		enqueued = append(enqueued, paths...)
	})

	summary, err := rec.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	// Directory A plus two files.
	if summary.Added != 3 || summary.Removed != 0 || summary.Unchanged != 0 {
		t.Errorf("summary = %+v, want 3 added", summary)
	}
	if len(enqueued) != 3 {
		t.Errorf("enqueued %d paths for enrichment, want 3", len(enqueued))
	}
	if rec.LastRebuild().IsZero() {
		t.Error("LastRebuild not recorded")
	}
}

func TestRebuildIdempotent(t *testing.T) {
	t.Parallel()

	root := filepath.ToSlash(t.TempDir())
	writeFile(t, filepath.Join(root, "A", "1.cbz"))
	writeFile(t, filepath.Join(root, "A", "2.cbz"))

	store := setupTestStore(t)
	rec := newTestReconciler(t, store, []string{root}, nil)

	if _, err := rec.Rebuild(context.Background()); err != nil {
		t.Fatalf("first Rebuild failed: %v", err)
	}
	summary, err := rec.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("second Rebuild failed: %v", err)
	}

	if summary.Added != 0 || summary.Removed != 0 || summary.Unchanged != 3 {
		t.Errorf("second pass = %+v, want {0 added, 0 removed, 3 unchanged}", summary)
	}
}

func TestRebuildDetectsDeletion(t *testing.T) {
	t.Parallel()

	root := filepath.ToSlash(t.TempDir())
	writeFile(t, filepath.Join(root, "A", "1.cbz"))
	writeFile(t, filepath.Join(root, "A", "2.cbz"))

	store := setupTestStore(t)
	rec := newTestReconciler(t, store, []string{root}, nil)

	if _, err := rec.Rebuild(context.Background()); err != nil {
		t.Fatalf("initial Rebuild failed: %v", err)
	}

	if err := os.Remove(filepath.Join(root, "A", "1.cbz")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	summary, err := rec.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild after deletion failed: %v", err)
	}
	if summary.Added != 0 || summary.Removed != 1 || summary.Unchanged != 2 {
		t.Errorf("summary = %+v, want {0 added, 1 removed, 2 unchanged}", summary)
	}

	if _, err := store.Get(context.Background(), root+"/A/1.cbz"); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("deleted file still indexed: %v", err)
	}
}

func TestRebuildDetectsDirectoryRename(t *testing.T) {
	t.Parallel()

	root := filepath.ToSlash(t.TempDir())
	writeFile(t, filepath.Join(root, "A", "1.cbz"))
	writeFile(t, filepath.Join(root, "A", "2.cbz"))

	store := setupTestStore(t)
	rec := newTestReconciler(t, store, []string{root}, nil)

	if _, err := rec.Rebuild(context.Background()); err != nil {
		t.Fatalf("initial Rebuild failed: %v", err)
	}

	if err := os.Rename(filepath.Join(root, "A"), filepath.Join(root, "B")); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	summary, err := rec.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild after rename failed: %v", err)
	}
	// Without move detection the rename reads as remove-all plus add-all.
	if summary.Added != 3 || summary.Removed != 3 || summary.Unchanged != 0 {
		t.Errorf("summary = %+v, want {3 added, 3 removed, 0 unchanged}", summary)
	}

	if _, err := store.Get(context.Background(), root+"/B/1.cbz"); err != nil {
		t.Errorf("renamed file not indexed: %v", err)
	}
}

func TestRebuildPreservesEnrichmentOnUnchanged(t *testing.T) {
	t.Parallel()

	root := filepath.ToSlash(t.TempDir())
	writeFile(t, filepath.Join(root, "A", "1.cbz"))

	store := setupTestStore(t)
	rec := newTestReconciler(t, store, []string{root}, nil)
	ctx := context.Background()

	if _, err := rec.Rebuild(ctx); err != nil {
		t.Fatalf("initial Rebuild failed: %v", err)
	}

	filePath := root + "/A/1.cbz"
	if err := store.SetScanStatus(ctx, filePath, index.ScanStatusWithMetadata); err != nil {
		t.Fatalf("SetScanStatus failed: %v", err)
	}
	if err := store.SetMetadata(ctx, filePath, "series", "Example"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	if _, err := rec.Rebuild(ctx); err != nil {
		t.Fatalf("second Rebuild failed: %v", err)
	}

	entry, err := store.Get(ctx, filePath)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.ScanStatus != index.ScanStatusWithMetadata {
		t.Errorf("ScanStatus reset by rebuild: %q", entry.ScanStatus)
	}
	meta, err := store.Metadata(ctx, filePath)
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if meta["series"] != "Example" {
		t.Errorf("enrichment lost across rebuild: %v", meta)
	}
}

func TestRebuildSkipsMissingRoot(t *testing.T) {
	t.Parallel()

	root := filepath.ToSlash(t.TempDir())
	writeFile(t, filepath.Join(root, "A", "1.cbz"))

	store := setupTestStore(t)
	rec := newTestReconciler(t, store, []string{root}, nil)
	ctx := context.Background()

	if _, err := rec.Rebuild(ctx); err != nil {
		t.Fatalf("initial Rebuild failed: %v", err)
	}

	// Take the whole root offline. Its contents must be kept, not read as a
	// mass deletion.
	if err := os.RemoveAll(root); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	summary, err := rec.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild with missing root failed: %v", err)
	}
	if summary.Added != 0 || summary.Removed != 0 {
		t.Errorf("summary = %+v, want a skipped pass with no deltas", summary)
	}

	if _, err := store.Get(ctx, root+"/A/1.cbz"); err != nil {
		t.Errorf("entry under offline root was dropped: %v", err)
	}
}

func TestDiffTypeChange(t *testing.T) {
	t.Parallel()

	snapshot := []index.Entry{
		{Path: "/lib/x", Type: index.EntryTypeDirectory},
	}
	stored := map[string]index.DiffRow{
		"/lib/x": {Type: index.EntryTypeFile, Size: 10, ModTime: 1},
	}

	added, removed, refresh, unchanged := diff(snapshot, stored)

	if len(added) != 1 || added[0].Path != "/lib/x" {
		t.Errorf("added = %+v, want /lib/x", added)
	}
	if len(removed) != 1 || removed[0] != "/lib/x" {
		t.Errorf("removed = %v, want [/lib/x]", removed)
	}
	if len(refresh) != 0 || unchanged != 0 {
		t.Errorf("refresh/unchanged = %v/%d, want none", refresh, unchanged)
	}
}

func TestDiffStatDrift(t *testing.T) {
	t.Parallel()

	snapshot := []index.Entry{
		{Path: "/lib/a.cbz", Type: index.EntryTypeFile, Size: 20, ModTime: 2},
		{Path: "/lib/b.cbz", Type: index.EntryTypeFile, Size: 10, ModTime: 1},
	}
	stored := map[string]index.DiffRow{
		"/lib/a.cbz": {Type: index.EntryTypeFile, Size: 10, ModTime: 1},
		"/lib/b.cbz": {Type: index.EntryTypeFile, Size: 10, ModTime: 1},
	}

	added, removed, refresh, unchanged := diff(snapshot, stored)

	if len(added) != 0 || len(removed) != 0 {
		t.Errorf("added/removed = %v/%v, want none", added, removed)
	}
	if unchanged != 2 {
		t.Errorf("unchanged = %d, want 2", unchanged)
	}
	if len(refresh) != 1 || refresh[0].Path != "/lib/a.cbz" {
		t.Errorf("refresh = %+v, want only the drifted entry", refresh)
	}
}

func TestAvailableRoots(t *testing.T) {
	t.Parallel()

	roots := []string{"/lib/a", "/lib/b", "/lib/c"}

	if got := availableRoots(roots, nil); len(got) != 3 {
		t.Errorf("availableRoots with no missing = %v", got)
	}
	got := availableRoots(roots, []string{"/lib/b"})
	if len(got) != 2 || got[0] != "/lib/a" || got[1] != "/lib/c" {
		t.Errorf("availableRoots = %v, want [/lib/a /lib/c]", got)
	}
	if got := availableRoots(roots, roots); got != nil {
		t.Errorf("availableRoots with all missing = %v, want nil", got)
	}
}

func TestRebuildInProgressReturnsSentinel(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	root := filepath.Join(t.TempDir(), "lib")
	writeFile(t, filepath.Join(root, "a.cbz"))

	rec := newTestReconciler(t, store, []string{root}, nil)
	if !rec.tryStart() {
		t.Fatal("tryStart failed on an idle reconciler")
	}
	defer rec.finish()

	if _, err := rec.Rebuild(context.Background()); !errors.Is(err, ErrRebuildInProgress) {
		t.Errorf("Rebuild during a running pass returned %v, want ErrRebuildInProgress", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)

	rec := newTestReconciler(t, store, []string{filepath.Join(t.TempDir(), "lib")}, nil)
	rec.Start()
	rec.Stop()
	rec.Stop()
}

func TestSummaryJSONReportsElapsedSeconds(t *testing.T) {
	t.Parallel()

	summary := Summary{Added: 1, Unchanged: 2}
	summary.setElapsed(1500 * time.Millisecond)

	data, err := json.Marshal(summary)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"elapsedSeconds":1.5`) {
		t.Errorf("summary JSON = %s, want elapsedSeconds as 1.5", data)
	}
	if strings.Contains(string(data), `"elapsed":`) {
		t.Errorf("summary JSON = %s, raw duration should not be serialized", data)
	}
}
