package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"github.com/bpepple/clu-comics-sub000/internal/logging"
	"github.com/bpepple/clu-comics-sub000/internal/metrics"
)

// Default timeout for store operations
const defaultTimeout = 5 * time.Second

// Store is the persistent index of everything under the library roots. It is
// the single durable owner of entry rows; only the reconciler and the
// invalidation hooks write to it, while request handlers read concurrently.
type Store struct {
	db      *sql.DB
	dbPath  string
	mu      sync.RWMutex
	txStart time.Time // transaction start time for metrics
}

// Open opens (or creates) the index database at dbPath. The parent directory
// must already exist and be writable; config.Load validates that.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Index database path: %s", dbPath)

	// WAL lets the reconciler write while request handlers keep reading the
	// pre-write state. busy_timeout bounds write-write contention instead of
	// failing fast with "database is locked".
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=30000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close index database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to index database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close index database after schema failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}

	logging.Info("Index database initialized at %s", dbPath)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	-- One row per filesystem entry under the library roots.
	-- size is NULL for directories.
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		parent_path TEXT NOT NULL,
		type TEXT NOT NULL,
		size INTEGER,
		mod_time INTEGER,
		has_thumbnail INTEGER NOT NULL DEFAULT 0,
		scan_status TEXT NOT NULL DEFAULT 'not_scanned',
		first_indexed_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_entries_parent_path ON entries(parent_path);
	CREATE INDEX IF NOT EXISTS idx_entries_parent_type ON entries(parent_path, type);
	CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name COLLATE NOCASE);

	-- Enrichment key/value pairs attached by the downstream metadata scanner.
	-- Kept in their own table so routine upserts never touch them.
	CREATE TABLE IF NOT EXISTS entry_metadata (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		UNIQUE(path, key)
	);

	CREATE INDEX IF NOT EXISTS idx_entry_metadata_path ON entry_metadata(path);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginBatch starts a transaction for batch operations.
// The caller is responsible for calling EndBatch when done.
func (s *Store) BeginBatch() (*sql.Tx, error) {
	s.mu.Lock()
	txStart := time.Now()

	// Background context: the transaction's lifetime is managed by EndBatch,
	// not a timeout. A deferred cancel here would kill the tx on return.
	tx, err := s.db.BeginTx(context.Background(), nil)
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	s.txStart = txStart
	return tx, nil
}

// EndBatch commits or rolls back a transaction.
func (s *Store) EndBatch(tx *sql.Tx, err error) error {
	duration := time.Since(s.txStart).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		rbErr := tx.Rollback()
		if rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return tx.Commit()
}

// Upsert inserts or updates an entry by path within a transaction.
// On update, first_indexed_at and scan_status are preserved along with every
// entry_metadata row; size, mod_time, type, and has_thumbnail are
// overwritten. Duplicate paths are never an error.
func (s *Store) Upsert(tx *sql.Tx, entry *Entry) error {
	query := `
	INSERT INTO entries (name, path, parent_path, type, size, mod_time, has_thumbnail, first_indexed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(path) DO UPDATE SET
		name = excluded.name,
		parent_path = excluded.parent_path,
		type = excluded.type,
		size = excluded.size,
		mod_time = excluded.mod_time,
		has_thumbnail = excluded.has_thumbnail
	`

	result, err := tx.ExecContext(context.Background(), query,
		entry.Name,
		entry.Path,
		entry.Parent,
		entry.Type,
		sizeArg(entry),
		modTimeArg(entry),
		entry.HasThumbnail,
	)
	if err == nil {
		if rows, _ := result.RowsAffected(); rows > 0 {
			metrics.DBRowsAffected.WithLabelValues("upsert_entry").Observe(float64(rows))
		}
	}
	return err
}

// sizeArg returns the size column value: NULL for directories.
func sizeArg(entry *Entry) interface{} {
	if entry.Type == EntryTypeDirectory {
		return nil
	}
	return entry.Size
}

// modTimeArg returns the mod_time column value: NULL when unknown.
func modTimeArg(entry *Entry) interface{} {
	if entry.ModTime == 0 {
		return nil
	}
	return entry.ModTime
}

// Remove deletes an entry and, for directories, every descendant (and all of
// their enrichment rows). Returns the number of entries removed; removing a
// path that is not indexed returns 0 and no error.
func (s *Store) Remove(ctx context.Context, path string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("remove", start, err) }()

	tx, err := s.BeginBatch()
	if err != nil {
		return 0, fmt.Errorf("failed to begin remove transaction: %w", err)
	}

	removed, err := removeSubtree(tx, path)
	if endErr := s.EndBatch(tx, err); endErr != nil {
		err = endErr
		return 0, endErr
	}
	return removed, nil
}

// RemoveBatch deletes many paths (each with subtree cascade) within a single
// caller-owned transaction. Used by reconciliation to drop orphaned sets.
func (s *Store) RemoveBatch(tx *sql.Tx, paths []string) (int64, error) {
	var total int64
	for _, path := range paths {
		removed, err := removeSubtree(tx, path)
		if err != nil {
			return total, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		total += removed
	}
	if total > 0 {
		metrics.DBRowsAffected.WithLabelValues("remove_batch").Observe(float64(total))
	}
	return total, nil
}

func removeSubtree(tx *sql.Tx, path string) (int64, error) {
	prefix := likeEscape(path) + "/%"

	_, err := tx.ExecContext(context.Background(),
		`DELETE FROM entry_metadata WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		path, prefix,
	)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(context.Background(),
		`DELETE FROM entries WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		path, prefix,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// likeEscape escapes LIKE wildcards in a literal path so prefix matches
// cannot be widened by % or _ in file names.
func likeEscape(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	path = strings.ReplaceAll(path, `%`, `\%`)
	path = strings.ReplaceAll(path, `_`, `\_`)
	return path
}

// Get returns the entry for an exact path, or ErrNotFound.
func (s *Store) Get(ctx context.Context, path string) (*Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, parent_path, type, size, mod_time, has_thumbnail, scan_status, first_indexed_at
		FROM entries WHERE path = ?
	`, path)

	entry, scanErr := scanEntry(row)
	if scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		err = scanErr
		return nil, scanErr
	}
	return entry, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var size, modTime sql.NullInt64
	var firstIndexed int64

	if err := row.Scan(
		&entry.ID, &entry.Name, &entry.Path, &entry.Parent,
		&entry.Type, &size, &modTime, &entry.HasThumbnail,
		&entry.ScanStatus, &firstIndexed,
	); err != nil {
		return nil, err
	}

	if size.Valid {
		entry.Size = size.Int64
	}
	if modTime.Valid {
		entry.ModTime = modTime.Int64
	}
	entry.FirstIndexedAt = time.Unix(firstIndexed, 0)
	return &entry, nil
}

// recordQuery records store query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// Vacuum optimizes the database.
func (s *Store) Vacuum() error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(ctx, "VACUUM")
	return err
}
