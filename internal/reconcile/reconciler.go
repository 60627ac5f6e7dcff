package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bpepple/clu-comics-sub000/internal/index"
	"github.com/bpepple/clu-comics-sub000/internal/logging"
	"github.com/bpepple/clu-comics-sub000/internal/metrics"
	"github.com/bpepple/clu-comics-sub000/internal/scanner"
)

const (
	// Number of upserts per committed batch
	batchSize = 500

	// Delay between batches to let interactive queries through
	batchDelay = 10 * time.Millisecond
)

// Enrichment queue priorities.
const (
	PriorityNormal = 0
	PriorityHigh   = 1
)

// EnqueueFunc hands newly indexed paths to the enrichment queue. The
// reconciler never blocks on enrichment completion.
type EnqueueFunc func(paths []string, priority int)

// ErrRebuildInProgress reports that a reconciliation pass is already
// running; the caller's request was not serviced.
var ErrRebuildInProgress = errors.New("rebuild already in progress")

// Summary reports the outcome of one reconciliation pass.
type Summary struct {
	Added     int           `json:"added"`
	Removed   int           `json:"removed"`
	Unchanged int           `json:"unchanged"`
	NewPaths  []string      `json:"-"`
	Elapsed   time.Duration `json:"-"`

	// Elapsed rendered as seconds; time.Duration would serialize as
	// nanoseconds.
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

func (s *Summary) setElapsed(d time.Duration) {
	s.Elapsed = d
	s.ElapsedSeconds = d.Seconds()
}

// Reconciler diffs filesystem snapshots against the index store and applies
// only the deltas, so enrichment metadata on unchanged entries is never
// recomputed.
type Reconciler struct {
	store   *index.Store
	scanner *scanner.Scanner
	roots   []string
	enqueue EnqueueFunc

	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	running     bool
	lastRebuild time.Time
	lastSummary Summary
}

// New creates a Reconciler. enqueue may be nil when no enrichment consumer
// is wired (tests, cold starts).
func New(store *index.Store, sc *scanner.Scanner, roots []string, enqueue EnqueueFunc, interval time.Duration) *Reconciler {
	return &Reconciler{
		store:    store,
		scanner:  sc,
		roots:    roots,
		enqueue:  enqueue,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the periodic rebuild loop. The caller may also invoke
// Rebuild directly at any time; a single-flight guard keeps passes from
// overlapping.
func (r *Reconciler) Start() {
	go r.periodicRebuild()
}

// Stop stops the periodic loop. Safe to call more than once. An in-flight
// pass is not interrupted; rebuilds are idempotent, so an interrupted pass
// is simply finished by the next cold diff.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

func (r *Reconciler) periodicRebuild() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic rebuild triggered")
			if _, err := r.Rebuild(context.Background()); err != nil {
				if errors.Is(err, ErrRebuildInProgress) {
					logging.Debug("Periodic rebuild skipped, pass already running")
				} else {
					logging.Error("periodic rebuild failed: %v", err)
				}
			}
		case <-r.stopChan:
			return
		}
	}
}

// Rebuild runs one full reconciliation pass: scan, diff, apply deltas.
// Running it twice with no filesystem change in between yields a second
// summary of {0 added, 0 removed, N unchanged}.
func (r *Reconciler) Rebuild(ctx context.Context) (Summary, error) {
	if !r.tryStart() {
		return Summary{}, ErrRebuildInProgress
	}
	defer r.finish()

	metrics.RebuildIsRunning.Set(1)
	defer metrics.RebuildIsRunning.Set(0)
	metrics.RebuildRunsTotal.Inc()

	start := time.Now()
	logging.Info("Starting reconciliation pass...")

	snap := r.scanner.Scan()

	// Roots that failed their existence check are skipped entirely: an
	// offline share must not read as "everything under it was deleted".
	available := availableRoots(r.roots, snap.Missing)
	if len(available) == 0 {
		logging.Warn("No library roots available, skipping reconciliation")
		var summary Summary
		summary.setElapsed(time.Since(start))
		return summary, nil
	}

	stored, err := r.store.AllUnder(ctx, available)
	if err != nil {
		metrics.RebuildErrors.Inc()
		return Summary{}, fmt.Errorf("failed to load index state: %w", err)
	}

	added, removed, refresh, unchanged := diff(snap.Entries, stored)

	// Removals commit before insertions are attempted: when a path changed
	// type between scans it appears in both sets, and the stale row must not
	// shadow the new one.
	if len(removed) > 0 {
		if err := r.applyRemovals(removed); err != nil {
			metrics.RebuildErrors.Inc()
			return Summary{}, err
		}
	}

	if err := r.applyUpserts(added, refresh); err != nil {
		metrics.RebuildErrors.Inc()
		return Summary{}, err
	}

	summary := Summary{
		Added:     len(added),
		Removed:   len(removed),
		Unchanged: unchanged,
	}
	summary.setElapsed(time.Since(start))
	for i := range added {
		summary.NewPaths = append(summary.NewPaths, added[i].Path)
	}

	r.finalize(summary)

	if r.enqueue != nil && len(summary.NewPaths) > 0 {
		r.enqueue(summary.NewPaths, PriorityNormal)
	}

	logging.Info("Reconciliation complete: %d added, %d removed, %d unchanged in %v",
		summary.Added, summary.Removed, summary.Unchanged, summary.Elapsed)
	return summary, nil
}

// diff computes the added/removed/unchanged sets. A path whose type changed
// between scans lands in both removed and added; an in-place update would
// leave child linkage pointing at the wrong kind of row.
func diff(snapshot []index.Entry, stored map[string]index.DiffRow) (added []index.Entry, removed []string, refresh []index.Entry, unchanged int) {
	seen := make(map[string]bool, len(snapshot))

	for i := range snapshot {
		e := snapshot[i]
		seen[e.Path] = true

		row, ok := stored[e.Path]
		if !ok {
			added = append(added, e)
			continue
		}
		if row.Type != e.Type {
			removed = append(removed, e.Path)
			added = append(added, e)
			continue
		}

		unchanged++
		// Cheap comparison first: the unchanged majority must not generate
		// writes on every pass over a 10k+ file library.
		if row.Size != e.Size || row.ModTime != e.ModTime {
			refresh = append(refresh, e)
		}
	}

	for p := range stored {
		if !seen[p] {
			removed = append(removed, p)
		}
	}

	return added, removed, refresh, unchanged
}

func availableRoots(roots, missing []string) []string {
	if len(missing) == 0 {
		return roots
	}
	gone := make(map[string]bool, len(missing))
	for _, m := range missing {
		gone[m] = true
	}
	var available []string
	for _, root := range roots {
		if !gone[root] {
			available = append(available, root)
		}
	}
	return available
}

// applyRemovals batch-deletes orphaned paths in one committed transaction.
func (r *Reconciler) applyRemovals(removed []string) error {
	tx, err := r.store.BeginBatch()
	if err != nil {
		return fmt.Errorf("failed to begin removal transaction: %w", err)
	}

	_, err = r.store.RemoveBatch(tx, removed)
	if endErr := r.store.EndBatch(tx, err); endErr != nil {
		return fmt.Errorf("failed to commit removals: %w", endErr)
	}

	metrics.RebuildEntriesDiffed.WithLabelValues("removed").Add(float64(len(removed)))
	logging.Info("Removed %d orphaned entries from index", len(removed))
	return nil
}

// applyUpserts inserts new entries and refreshes drifted stats in batches.
func (r *Reconciler) applyUpserts(added, refresh []index.Entry) error {
	total := len(added) + len(refresh)
	if total == 0 {
		return nil
	}

	for start := 0; start < len(added); start += batchSize {
		end := min(start+batchSize, len(added))
		if err := r.upsertBatch(added[start:end], false); err != nil {
			return err
		}
		time.Sleep(batchDelay)
	}

	for start := 0; start < len(refresh); start += batchSize {
		end := min(start+batchSize, len(refresh))
		if err := r.upsertBatch(refresh[start:end], true); err != nil {
			return err
		}
		time.Sleep(batchDelay)
	}

	metrics.RebuildEntriesDiffed.WithLabelValues("added").Add(float64(len(added)))
	metrics.RebuildEntriesDiffed.WithLabelValues("unchanged").Add(float64(len(refresh)))
	return nil
}

func (r *Reconciler) upsertBatch(entries []index.Entry, statOnly bool) error {
	tx, err := r.store.BeginBatch()
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}

	for i := range entries {
		var upsertErr error
		if statOnly {
			upsertErr = r.store.RefreshStat(tx, &entries[i])
		} else {
			upsertErr = r.store.Upsert(tx, &entries[i])
		}
		if upsertErr != nil {
			logging.Warn("Error writing entry %s: %v", entries[i].Path, upsertErr)
		}
	}

	if err := r.store.EndBatch(tx, nil); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (r *Reconciler) tryStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Reconciler) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
}

func (r *Reconciler) finalize(summary Summary) {
	r.mu.Lock()
	r.lastRebuild = time.Now()
	r.lastSummary = summary
	r.mu.Unlock()

	metrics.RebuildLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.RebuildLastRunDuration.Set(summary.Elapsed.Seconds())

	if stats, err := r.store.CalculateStats(context.Background()); err == nil {
		metrics.IndexEntriesTotal.WithLabelValues("file").Set(float64(stats.TotalFiles))
		metrics.IndexEntriesTotal.WithLabelValues("directory").Set(float64(stats.TotalDirectories))
	}
}

// IsRunning reports whether a pass is currently in progress.
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastRebuild returns the completion time of the last pass, zero before the
// first one finishes.
func (r *Reconciler) LastRebuild() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRebuild
}

// LastSummary returns the summary of the last completed pass.
func (r *Reconciler) LastSummary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSummary
}
