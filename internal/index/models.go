package index

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup targets a path that is not indexed.
// Callers branch on it without treating it as an operational failure.
var ErrNotFound = errors.New("index: entry not found")

// EntryType classifies an index entry.
type EntryType string

const (
	EntryTypeFile      EntryType = "file"
	EntryTypeDirectory EntryType = "directory"
)

// ScanStatus records whether downstream enrichment has examined a file yet.
type ScanStatus string

const (
	ScanStatusNotScanned   ScanStatus = "not_scanned"
	ScanStatusNoMetadata   ScanStatus = "scanned_no_metadata"
	ScanStatusWithMetadata ScanStatus = "scanned_with_metadata"
)

// Entry is one row describing a single file or directory known to the index.
// Paths are absolute with forward-slash separators.
type Entry struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Path         string     `json:"path"`
	Parent       string     `json:"parent"`
	Type         EntryType  `json:"type"`
	Size         int64      `json:"size,omitempty"`
	ModTime      int64      `json:"modTime,omitempty"`
	HasThumbnail bool       `json:"hasThumbnail"`
	ScanStatus   ScanStatus `json:"scanStatus"`

	// FirstIndexedAt is set once on insert and survives every later upsert.
	FirstIndexedAt time.Time `json:"firstIndexedAt"`
}

// Counts holds aggregate child counts for a single directory.
type Counts struct {
	Subfolders int `json:"subfolders"`
	Files      int `json:"files"`
}

// Stats holds index-wide totals for the status endpoint.
type Stats struct {
	TotalFiles       int       `json:"totalFiles"`
	TotalDirectories int       `json:"totalDirectories"`
	LastRebuilt      time.Time `json:"lastRebuilt,omitempty"`
}
