package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t testing.TB) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(context.Background(), dbPath)
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

func mustUpsert(t testing.TB, store *Store, entries ...*Entry) {
	t.Helper()

	tx, err := store.BeginBatch()
	if err != nil {
		t.Fatalf("BeginBatch failed: %v", err)
	}
	for _, entry := range entries {
		if err := store.Upsert(tx, entry); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", entry.Path, err)
		}
	}
	if err := store.EndBatch(tx, nil); err != nil {
		t.Fatalf("EndBatch failed: %v", err)
	}
}

func fileEntry(path string, size, modTime int64) *Entry {
	return &Entry{
		Name:    filepath.Base(path),
		Path:    path,
		Parent:  filepath.ToSlash(filepath.Dir(path)),
		Type:    EntryTypeFile,
		Size:    size,
		ModTime: modTime,
	}
}

func dirEntry(path string) *Entry {
	return &Entry{
		Name:   filepath.Base(path),
		Path:   path,
		Parent: filepath.ToSlash(filepath.Dir(path)),
		Type:   EntryTypeDirectory,
	}
}

func TestUpsertAndGet(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store, fileEntry("/lib/A/1.cbz", 100, 1000))

	got, err := store.Get(ctx, "/lib/A/1.cbz")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "1.cbz" || got.Parent != "/lib/A" || got.Type != EntryTypeFile {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.Size != 100 || got.ModTime != 1000 {
		t.Errorf("size/modTime = %d/%d, want 100/1000", got.Size, got.ModTime)
	}
	if got.ScanStatus != ScanStatusNotScanned {
		t.Errorf("ScanStatus = %q, want %q", got.ScanStatus, ScanStatusNotScanned)
	}
	if got.FirstIndexedAt.IsZero() {
		t.Error("FirstIndexedAt not set on insert")
	}
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)

	_, err := store.Get(context.Background(), "/lib/missing.cbz")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestUpsertPreservesFirstIndexedAndEnrichment(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store, fileEntry("/lib/A/1.cbz", 100, 1000))

	first, err := store.Get(ctx, "/lib/A/1.cbz")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if err := store.SetScanStatus(ctx, "/lib/A/1.cbz", ScanStatusWithMetadata); err != nil {
		t.Fatalf("SetScanStatus failed: %v", err)
	}
	if err := store.SetMetadata(ctx, "/lib/A/1.cbz", "series", "Example"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	// Re-index the same path with new stat data.
	mustUpsert(t, store, fileEntry("/lib/A/1.cbz", 200, 2000))

	got, err := store.Get(ctx, "/lib/A/1.cbz")
	if err != nil {
		t.Fatalf("Get after re-upsert failed: %v", err)
	}
	if got.Size != 200 || got.ModTime != 2000 {
		t.Errorf("stat data not refreshed: size/modTime = %d/%d", got.Size, got.ModTime)
	}
	if !got.FirstIndexedAt.Equal(first.FirstIndexedAt) {
		t.Errorf("FirstIndexedAt changed across upsert: %v -> %v", first.FirstIndexedAt, got.FirstIndexedAt)
	}
	if got.ScanStatus != ScanStatusWithMetadata {
		t.Errorf("ScanStatus reset across upsert: %q", got.ScanStatus)
	}

	meta, err := store.Metadata(ctx, "/lib/A/1.cbz")
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if meta["series"] != "Example" {
		t.Errorf("enrichment lost across upsert: %v", meta)
	}
}

func TestRemoveCascades(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store,
		dirEntry("/lib/A"),
		dirEntry("/lib/A/sub"),
		fileEntry("/lib/A/1.cbz", 10, 1),
		fileEntry("/lib/A/sub/2.cbz", 20, 2),
		fileEntry("/lib/Archive/3.cbz", 30, 3),
	)
	if err := store.SetMetadata(ctx, "/lib/A/sub/2.cbz", "series", "X"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	removed, err := store.Remove(ctx, "/lib/A")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed != 4 {
		t.Errorf("removed = %d, want 4 (directory plus 3 descendants)", removed)
	}

	// Sibling with a shared name prefix must survive: /lib/A is not a
	// prefix of /lib/Archive in path terms.
	if _, err := store.Get(ctx, "/lib/Archive/3.cbz"); err != nil {
		t.Errorf("sibling with shared name prefix was removed: %v", err)
	}

	if _, err := store.Get(ctx, "/lib/A/sub/2.cbz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("descendant survived cascade: %v", err)
	}
	meta, err := store.Metadata(ctx, "/lib/A/sub/2.cbz")
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if len(meta) != 0 {
		t.Errorf("enrichment survived cascade: %v", meta)
	}
}

func TestRemoveUnknownPathIsNoError(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)

	removed, err := store.Remove(context.Background(), "/lib/never-indexed")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestChildrenOrderingAndDenylist(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store,
		fileEntry("/lib/A/zeta.cbz", 1, 1),
		fileEntry("/lib/A/Alpha.cbz", 1, 1),
		dirEntry("/lib/A/beta"),
		fileEntry("/lib/A/thumbs.db", 1, 1),
		fileEntry("/lib/A/partial.part", 1, 1),
		fileEntry("/lib/A/series.json", 1, 1),
		fileEntry("/lib/A/sub/nested.cbz", 1, 1),
	)

	dirs, files, err := store.Children(ctx, "/lib/A")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}

	if len(dirs) != 1 || dirs[0].Name != "beta" {
		t.Errorf("directories = %+v, want single 'beta'", dirs)
	}

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	want := []string{"Alpha.cbz", "series.json", "zeta.cbz"}
	if len(names) != len(want) {
		t.Fatalf("files = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store,
		fileEntry("/lib/A/Saga Vol 1.cbz", 1, 1),
		fileEntry("/lib/B/saga-two.cbz", 1, 1),
		fileEntry("/lib/B/other.cbz", 1, 1),
	)

	results, err := store.Search(ctx, "SAGA", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Search returned %d results, want 2: %+v", len(results), results)
	}
}

func TestSearchEscapesWildcards(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store,
		fileEntry("/lib/A/100%.cbz", 1, 1),
		fileEntry("/lib/A/percent.cbz", 1, 1),
	)

	results, err := store.Search(ctx, "100%", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "100%.cbz" {
		t.Errorf("wildcard not escaped, results = %+v", results)
	}
}

func TestCountsUnder(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store,
		dirEntry("/lib/A/sub1"),
		dirEntry("/lib/A/sub2"),
		fileEntry("/lib/A/1.cbz", 1, 1),
		fileEntry("/lib/B/2.cbz", 1, 1),
		fileEntry("/lib/B/3.cbz", 1, 1),
	)

	counts, err := store.CountsUnder(ctx, []string{"/lib/A", "/lib/B", "/lib/Empty"})
	if err != nil {
		t.Fatalf("CountsUnder failed: %v", err)
	}

	if c := counts["/lib/A"]; c.Subfolders != 2 || c.Files != 1 {
		t.Errorf("counts[/lib/A] = %+v, want {2 1}", c)
	}
	if c := counts["/lib/B"]; c.Subfolders != 0 || c.Files != 2 {
		t.Errorf("counts[/lib/B] = %+v, want {0 2}", c)
	}
	if c, ok := counts["/lib/Empty"]; ok && (c.Subfolders != 0 || c.Files != 0) {
		t.Errorf("counts[/lib/Empty] = %+v, want zero", c)
	}
}

func TestCountsUnderEmptyInput(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)

	counts, err := store.CountsUnder(context.Background(), nil)
	if err != nil {
		t.Fatalf("CountsUnder failed: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("counts = %v, want empty", counts)
	}
}

func TestAllUnderScopedToRoots(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store,
		fileEntry("/lib/A/1.cbz", 10, 100),
		dirEntry("/lib/A"),
		fileEntry("/other/2.cbz", 20, 200),
	)

	rows, err := store.AllUnder(ctx, []string{"/lib"})
	if err != nil {
		t.Fatalf("AllUnder failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("AllUnder returned %d rows, want 2: %v", len(rows), rows)
	}
	if row, ok := rows["/lib/A/1.cbz"]; !ok || row.Size != 10 || row.ModTime != 100 {
		t.Errorf("rows[/lib/A/1.cbz] = %+v", row)
	}
	if _, ok := rows["/other/2.cbz"]; ok {
		t.Error("AllUnder leaked a path outside the requested roots")
	}
}

func TestSetScanStatusNotFound(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)

	err := store.SetScanStatus(context.Background(), "/lib/missing.cbz", ScanStatusNoMetadata)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetScanStatus = %v, want ErrNotFound", err)
	}
}

func TestMoveFile(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store, fileEntry("/lib/A/1.cbz", 10, 100))
	if err := store.SetMetadata(ctx, "/lib/A/1.cbz", "series", "X"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	before, err := store.Get(ctx, "/lib/A/1.cbz")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if err := store.MoveFile(ctx, "/lib/A/1.cbz", "/lib/B/renamed.cbz"); err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}

	if _, err := store.Get(ctx, "/lib/A/1.cbz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old path still indexed: %v", err)
	}
	after, err := store.Get(ctx, "/lib/B/renamed.cbz")
	if err != nil {
		t.Fatalf("Get after move failed: %v", err)
	}
	if after.Name != "renamed.cbz" || after.Parent != "/lib/B" {
		t.Errorf("moved entry = %+v", after)
	}
	if !after.FirstIndexedAt.Equal(before.FirstIndexedAt) {
		t.Error("FirstIndexedAt changed across move")
	}

	meta, err := store.Metadata(ctx, "/lib/B/renamed.cbz")
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if meta["series"] != "X" {
		t.Errorf("enrichment did not follow the move: %v", meta)
	}
}

func TestMoveDirectoryRewritesSubtree(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store,
		dirEntry("/lib/A"),
		dirEntry("/lib/A/sub"),
		fileEntry("/lib/A/1.cbz", 1, 1),
		fileEntry("/lib/A/sub/2.cbz", 2, 2),
		fileEntry("/lib/Archive/keep.cbz", 3, 3),
	)
	if err := store.SetMetadata(ctx, "/lib/A/sub/2.cbz", "series", "X"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	if err := store.MoveDirectory(ctx, "/lib/A", "/lib/B"); err != nil {
		t.Fatalf("MoveDirectory failed: %v", err)
	}

	for _, oldPath := range []string{"/lib/A", "/lib/A/sub", "/lib/A/1.cbz", "/lib/A/sub/2.cbz"} {
		if _, err := store.Get(ctx, oldPath); !errors.Is(err, ErrNotFound) {
			t.Errorf("old path %s still indexed", oldPath)
		}
	}

	moved, err := store.Get(ctx, "/lib/B/sub/2.cbz")
	if err != nil {
		t.Fatalf("descendant not moved: %v", err)
	}
	if moved.Parent != "/lib/B/sub" {
		t.Errorf("descendant parent = %q, want /lib/B/sub", moved.Parent)
	}

	child, err := store.Get(ctx, "/lib/B/1.cbz")
	if err != nil {
		t.Fatalf("direct child not moved: %v", err)
	}
	if child.Parent != "/lib/B" {
		t.Errorf("direct child parent = %q, want /lib/B", child.Parent)
	}

	// Name-prefix sibling untouched.
	if _, err := store.Get(ctx, "/lib/Archive/keep.cbz"); err != nil {
		t.Errorf("sibling with shared name prefix was moved: %v", err)
	}

	meta, err := store.Metadata(ctx, "/lib/B/sub/2.cbz")
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if meta["series"] != "X" {
		t.Errorf("enrichment did not follow directory move: %v", meta)
	}
}

func TestMoveDirectoryMultibyteName(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	// "Série" is 6 characters but 7 bytes; the rewrite must cut the old
	// prefix by characters or the descendant separator gets swallowed.
	mustUpsert(t, store,
		dirEntry("/lib/Série"),
		fileEntry("/lib/Série/001.cbz", 1, 1),
	)

	if err := store.MoveDirectory(ctx, "/lib/Série", "/lib/Serie2"); err != nil {
		t.Fatalf("MoveDirectory failed: %v", err)
	}

	moved, err := store.Get(ctx, "/lib/Serie2/001.cbz")
	if err != nil {
		t.Fatalf("descendant not found after move: %v", err)
	}
	if moved.Parent != "/lib/Serie2" {
		t.Errorf("descendant parent = %q, want /lib/Serie2", moved.Parent)
	}
	if _, err := store.Get(ctx, "/lib/Serie2001.cbz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("descendant rewritten with mangled separator, err = %v", err)
	}
}

func TestCalculateStats(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)

	mustUpsert(t, store,
		dirEntry("/lib/A"),
		fileEntry("/lib/A/1.cbz", 1, 1),
		fileEntry("/lib/A/2.cbz", 1, 1),
	)

	stats, err := store.CalculateStats(context.Background())
	if err != nil {
		t.Fatalf("CalculateStats failed: %v", err)
	}
	if stats.TotalFiles != 2 || stats.TotalDirectories != 1 {
		t.Errorf("stats = %+v, want 2 files / 1 directory", stats)
	}
}

func TestLikeEscape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"/lib/plain", "/lib/plain"},
		{"/lib/100%", `/lib/100\%`},
		{"/lib/under_score", `/lib/under\_score`},
		{`/lib/back\slash`, `/lib/back\\slash`},
	}
	for _, tt := range tests {
		if got := likeEscape(tt.in); got != tt.want {
			t.Errorf("likeEscape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordQueryDoesNotPanic(t *testing.T) {
	t.Parallel()

	recordQuery("test_operation", time.Now(), nil)
	recordQuery("test_operation", time.Now(), errors.New("test error"))
	recordQuery("", time.Now(), nil)
}
