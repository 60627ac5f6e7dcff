package index

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"
	"time"
)

// Sidecar files produced by other tools are not content and are hidden from
// listings, unless explicitly allow-listed by name (marker files the UI
// should still surface).
var (
	denylistExtensions = map[string]bool{
		".tmp":        true,
		".part":       true,
		".crdownload": true,
		".db":         true,
		".nfo":        true,
	}

	allowlistNames = map[string]bool{
		"series.json": true,
		".nomedia":    true,
	}
)

// listable reports whether a file entry should appear in directory listings.
func listable(name string) bool {
	if allowlistNames[strings.ToLower(name)] {
		return true
	}
	return !denylistExtensions[strings.ToLower(path.Ext(name))]
}

// Children returns the immediate children of a directory, directories and
// files separately, each sorted case-insensitively by name. Denylisted
// sidecar files are excluded unless allow-listed by name.
func (s *Store) Children(ctx context.Context, parent string) (directories, files []Entry, err error) {
	start := time.Now()
	defer func() { recordQuery("children", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, path, parent_path, type, size, mod_time, has_thumbnail, scan_status, first_indexed_at
		FROM entries
		WHERE parent_path = ?
		ORDER BY (CASE WHEN type = 'directory' THEN 0 ELSE 1 END), name COLLATE NOCASE
	`, parent)
	if err != nil {
		return nil, nil, fmt.Errorf("children query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			err = fmt.Errorf("children scan failed: %w", scanErr)
			return nil, nil, err
		}
		if entry.Type == EntryTypeDirectory {
			directories = append(directories, *entry)
			continue
		}
		if listable(entry.Name) {
			files = append(files, *entry)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("children rows error: %w", err)
	}

	return directories, files, nil
}

// Search performs a case-insensitive substring match against entry names.
// An empty query returns up to limit arbitrary entries. Ordering puts
// directories before files, then sorts by name; nothing stronger is promised.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("search", start, err) }()

	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	baseSelect := `
		SELECT id, name, path, parent_path, type, size, mod_time, has_thumbnail, scan_status, first_indexed_at
		FROM entries
	`
	order := ` ORDER BY (CASE WHEN type = 'directory' THEN 0 ELSE 1 END), name COLLATE NOCASE LIMIT ?`

	var rows *sql.Rows
	if query == "" {
		rows, err = s.db.QueryContext(ctx, baseSelect+order, limit)
	} else {
		pattern := "%" + likeEscape(query) + "%"
		rows, err = s.db.QueryContext(ctx, baseSelect+` WHERE name LIKE ? ESCAPE '\'`+order, pattern, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			err = fmt.Errorf("search scan failed: %w", scanErr)
			return nil, err
		}
		results = append(results, *entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows error: %w", err)
	}

	return results, nil
}

// CountsUnder returns (subfolder, file) counts for many parents in a single
// round trip. Listing pages show aggregate counts for hundreds of sibling
// directories; per-directory queries would be an N+1 problem.
func (s *Store) CountsUnder(ctx context.Context, parents []string) (map[string]Counts, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("counts_under", start, err) }()

	counts := make(map[string]Counts, len(parents))
	if len(parents) == 0 {
		return counts, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	placeholders := strings.Repeat("?,", len(parents))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(parents))
	for i, p := range parents {
		args[i] = p
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT parent_path, type, COUNT(*)
		FROM entries
		WHERE parent_path IN (%s)
		GROUP BY parent_path, type
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("counts query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var parent string
		var entryType EntryType
		var n int
		if scanErr := rows.Scan(&parent, &entryType, &n); scanErr != nil {
			err = fmt.Errorf("counts scan failed: %w", scanErr)
			return nil, err
		}
		c := counts[parent]
		if entryType == EntryTypeDirectory {
			c.Subfolders = n
		} else {
			c.Files = n
		}
		counts[parent] = c
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("counts rows error: %w", err)
	}

	return counts, nil
}

// DiffRow is the subset of an entry the reconciler compares against a fresh
// filesystem snapshot.
type DiffRow struct {
	Type    EntryType
	Size    int64
	ModTime int64
}

// AllUnder returns every indexed path beneath the given roots, keyed by path.
// Roots themselves are not entries; only their contents are indexed.
func (s *Store) AllUnder(ctx context.Context, roots []string) (map[string]DiffRow, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("all_under", start, err) }()

	result := make(map[string]DiffRow)
	if len(roots) == 0 {
		return result, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Full-pass query: no per-query timeout, a 100k-row library may take a
	// while on first load. The caller's context still applies.
	var clauses []string
	var args []interface{}
	for _, root := range roots {
		clauses = append(clauses, `path LIKE ? ESCAPE '\'`)
		args = append(args, likeEscape(root)+"/%")
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT path, type, size, mod_time
		FROM entries
		WHERE %s
	`, strings.Join(clauses, " OR ")), args...)
	if err != nil {
		return nil, fmt.Errorf("all-under query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		var row DiffRow
		var size, modTime sql.NullInt64
		if scanErr := rows.Scan(&p, &row.Type, &size, &modTime); scanErr != nil {
			err = fmt.Errorf("all-under scan failed: %w", scanErr)
			return nil, err
		}
		if size.Valid {
			row.Size = size.Int64
		}
		if modTime.Valid {
			row.ModTime = modTime.Int64
		}
		result[p] = row
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("all-under rows error: %w", err)
	}

	return result, nil
}

// RefreshStat updates only size and mod_time for an existing entry. Used for
// unchanged-path refreshes so enrichment and first_indexed_at are never
// touched.
func (s *Store) RefreshStat(tx *sql.Tx, entry *Entry) error {
	_, err := tx.ExecContext(context.Background(), `
		UPDATE entries SET size = ?, mod_time = ?, has_thumbnail = ? WHERE path = ?
	`, sizeArg(entry), modTimeArg(entry), entry.HasThumbnail, entry.Path)
	return err
}

// SetScanStatus records the enrichment tri-state for a file.
func (s *Store) SetScanStatus(ctx context.Context, path string, status ScanStatus) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_scan_status", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `UPDATE entries SET scan_status = ? WHERE path = ?`, status, path)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// SetMetadata attaches (or replaces) one enrichment key/value pair.
func (s *Store) SetMetadata(ctx context.Context, path, key, value string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_metadata", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entry_metadata (path, key, value) VALUES (?, ?, ?)
		ON CONFLICT(path, key) DO UPDATE SET value = excluded.value
	`, path, key, value)
	return err
}

// Metadata returns all enrichment pairs for a path. A path with no pairs
// yields an empty map, not an error.
func (s *Store) Metadata(ctx context.Context, path string) (map[string]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("metadata", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM entry_metadata WHERE path = ?`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if scanErr := rows.Scan(&k, &v); scanErr != nil {
			err = scanErr
			return nil, scanErr
		}
		meta[k] = v
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return meta, nil
}

// MoveFile rewrites a single file row for a within-roots move.
func (s *Store) MoveFile(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("move_file", start, err) }()

	tx, err := s.BeginBatch()
	if err != nil {
		return fmt.Errorf("failed to begin move transaction: %w", err)
	}

	err = func() error {
		_, execErr := tx.ExecContext(context.Background(), `
			UPDATE entries SET path = ?, name = ?, parent_path = ? WHERE path = ?
		`, newPath, path.Base(newPath), path.Dir(newPath), oldPath)
		if execErr != nil {
			return execErr
		}
		_, execErr = tx.ExecContext(context.Background(),
			`UPDATE entry_metadata SET path = ? WHERE path = ?`, newPath, oldPath)
		return execErr
	}()

	return s.EndBatch(tx, err)
}

// MoveDirectory atomically rewrites the old path prefix to the new one in
// both path and parent_path columns, for the directory row and every
// descendant, enrichment rows included.
func (s *Store) MoveDirectory(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("move_directory", start, err) }()

	tx, err := s.BeginBatch()
	if err != nil {
		return fmt.Errorf("failed to begin move transaction: %w", err)
	}

	err = moveSubtree(tx, oldPath, newPath)
	return s.EndBatch(tx, err)
}

func moveSubtree(tx *sql.Tx, oldPath, newPath string) error {
	prefix := likeEscape(oldPath) + "/%"

	// The directory row itself.
	if _, err := tx.ExecContext(context.Background(), `
		UPDATE entries SET path = ?, name = ?, parent_path = ? WHERE path = ?
	`, newPath, path.Base(newPath), path.Dir(newPath), oldPath); err != nil {
		return err
	}

	// substr and length count characters, not bytes, so the prefix offset
	// has to come from SQLite itself or multibyte names shift the cut.
	if _, err := tx.ExecContext(context.Background(), `
		UPDATE entries SET path = ? || substr(path, length(?) + 1)
		WHERE path LIKE ? ESCAPE '\'
	`, newPath, oldPath, prefix); err != nil {
		return err
	}

	// Descendant parent linkage (direct children point at the moved
	// directory, deeper rows at one of its descendants).
	if _, err := tx.ExecContext(context.Background(), `
		UPDATE entries SET parent_path = ? || substr(parent_path, length(?) + 1)
		WHERE parent_path = ? OR parent_path LIKE ? ESCAPE '\'
	`, newPath, oldPath, oldPath, prefix); err != nil {
		return err
	}

	// Enrichment follows its entry.
	if _, err := tx.ExecContext(context.Background(), `
		UPDATE entry_metadata SET path = ? || substr(path, length(?) + 1)
		WHERE path = ? OR path LIKE ? ESCAPE '\'
	`, newPath, oldPath, oldPath, prefix); err != nil {
		return err
	}

	return nil
}

// CalculateStats returns index-wide totals.
func (s *Store) CalculateStats(ctx context.Context) (Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("calculate_stats", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var stats Stats
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE type = 'file'`).Scan(&stats.TotalFiles); err != nil {
		return stats, err
	}
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE type = 'directory'`).Scan(&stats.TotalDirectories); err != nil {
		return stats, err
	}
	return stats, nil
}
