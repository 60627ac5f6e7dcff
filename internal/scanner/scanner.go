package scanner

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bpepple/clu-comics-sub000/internal/index"
	"github.com/bpepple/clu-comics-sub000/internal/logging"
	"github.com/bpepple/clu-comics-sub000/internal/metrics"
)

// coverExtensions are the image extensions recognised as companion
// thumbnails for an archive or a directory.
var coverExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// Snapshot is the result of one scan pass over the library roots.
type Snapshot struct {
	// Entries holds one normalized entry per surviving filesystem object,
	// in walk order.
	Entries []index.Entry

	// Missing lists roots that failed their existence check. The reconciler
	// must skip these entirely rather than interpret absence as deletion.
	Missing []string
}

// Scanner walks the configured library roots and produces snapshots. It is
// stateless and never writes to the store; persistence is the reconciler's
// job.
type Scanner struct {
	roots      []string
	stagingDir string
}

// New creates a Scanner. Roots and stagingDir must be absolute forward-slash
// paths (config.Load normalizes them).
func New(roots []string, stagingDir string) *Scanner {
	return &Scanner{
		roots:      roots,
		stagingDir: stagingDir,
	}
}

// Scan walks every available root and returns the snapshot. Unreadable
// subtrees are logged and skipped; a scan never partially fails. Roots that
// disappeared (unplugged network shares) are reported in Missing and their
// prior contents left alone.
func (s *Scanner) Scan() Snapshot {
	var snap Snapshot

	// Names seen per directory, for sibling-thumbnail detection without a
	// second round of stat calls.
	siblings := make(map[string]map[string]bool)

	for _, root := range s.roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			logging.Warn("Library root %s unavailable, skipping: %v", root, err)
			metrics.ScannerMissingRoots.Inc()
			snap.Missing = append(snap.Missing, root)
			continue
		}
		s.walkRoot(root, &snap, siblings)
	}

	markThumbnails(snap.Entries, siblings)

	metrics.ScannerEntriesScanned.Add(float64(len(snap.Entries)))
	return snap
}

func (s *Scanner) walkRoot(root string, snap *Snapshot, siblings map[string]map[string]bool) {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// A root vanishing mid-walk lands here too; treat it like any
			// other unreadable subtree.
			logging.Warn("Error accessing %s, skipping: %v", p, err)
			metrics.ScannerSkippedErrors.Inc()
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		p = filepath.ToSlash(p)
		if p == root {
			return nil
		}

		if hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if s.excluded(p) {
			logging.Debug("Skipping staging subtree at %s", p)
			return filepath.SkipDir
		}

		info, err := d.Info()
		if err != nil {
			logging.Warn("Error reading info for %s, skipping: %v", p, err)
			metrics.ScannerSkippedErrors.Inc()
			return nil
		}

		parent := path.Dir(p)
		if names := siblings[parent]; names == nil {
			siblings[parent] = map[string]bool{d.Name(): true}
		} else {
			names[d.Name()] = true
		}

		entry := index.Entry{
			Name:    d.Name(),
			Path:    p,
			Parent:  parent,
			ModTime: info.ModTime().Unix(),
		}
		if d.IsDir() {
			entry.Type = index.EntryTypeDirectory
		} else {
			entry.Type = index.EntryTypeFile
			entry.Size = info.Size()
		}

		snap.Entries = append(snap.Entries, entry)
		return nil
	})
	if err != nil {
		logging.Warn("Walk of root %s ended early: %v", root, err)
		metrics.ScannerSkippedErrors.Inc()
	}
}

// hidden reports whether a name is excluded from indexing outright.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// excluded reports whether a path is the staging subtree or inside it.
func (s *Scanner) excluded(p string) bool {
	if s.stagingDir == "" {
		return false
	}
	return p == s.stagingDir || strings.HasPrefix(p, s.stagingDir+"/")
}

// markThumbnails sets HasThumbnail from the sibling name sets collected
// during the walk. A file has a thumbnail when an image with the same stem
// sits next to it; a directory, when it contains a cover image.
func markThumbnails(entries []index.Entry, siblings map[string]map[string]bool) {
	for i := range entries {
		e := &entries[i]
		if e.Type == index.EntryTypeDirectory {
			e.HasThumbnail = hasCover(siblings[e.Path])
			continue
		}
		stem := strings.TrimSuffix(e.Name, path.Ext(e.Name))
		names := siblings[e.Parent]
		for _, ext := range coverExtensions {
			if names[stem+ext] {
				e.HasThumbnail = true
				break
			}
		}
	}
}

func hasCover(names map[string]bool) bool {
	for _, ext := range coverExtensions {
		if names["cover"+ext] {
			return true
		}
	}
	return false
}
