package listcache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/bpepple/clu-comics-sub000/internal/logging"
	"github.com/bpepple/clu-comics-sub000/internal/metrics"
)

const (
	// DefaultTTL is how long a cached listing is trusted.
	DefaultTTL = 5 * time.Second

	// DefaultCapacity bounds the number of cached listings.
	DefaultCapacity = 500

	// Every sweepEvery-th miss triggers a sweep of TTL-expired entries, so
	// memory stays bounded even under low query volume.
	sweepEvery = 10

	// minCapacity is the floor for memory-pressure shrinks.
	minCapacity = 16
)

// Namespace tags a cache key with its validation policy.
type Namespace string

const (
	// NSList keys cache raw directory reads; hits are revalidated by
	// recomputing the path fingerprint.
	NSList Namespace = "list"

	// NSBrowse keys cache pre-joined browse listings; hits are validated by
	// TTL alone. Fingerprint checking was observed to thrash on
	// frequently-read directories, so this weaker policy is deliberate.
	NSBrowse Namespace = "browse"
)

// Key identifies one cached listing. The namespace is part of the key, not
// a string prefix, so the differing validation policies stay a typed branch.
type Key struct {
	NS   Namespace
	Path string
}

// DirInfo is one child directory in a cached listing.
type DirInfo struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Subfolders int    `json:"subfolders"`
	Files      int    `json:"files"`
}

// FileInfo is one child file in a cached listing.
type FileInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	HasThumbnail bool   `json:"hasThumbnail"`
}

// Listing is the cached answer to "what does directory X contain".
type Listing struct {
	Path        string     `json:"path"`
	Directories []DirInfo  `json:"directories"`
	Files       []FileInfo `json:"files"`
}

// Counters is a snapshot of the cache's monotonic counters. They reset only
// on an explicit Clear.
type Counters struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
}

type cacheEntry struct {
	key      Key
	listing  Listing
	fp       Fingerprint
	cachedAt time.Time
}

// Cache is the in-process directory listing cache: bounded, TTL-limited,
// LRU-evicted. It holds no authority over correctness and is always safe to
// drop; a restart simply refills it lazily.
//
// One mutex protects the map and the LRU order. Every read-modify-write
// (lookup-then-touch, insert-then-evict) holds it for the whole critical
// section, but it is never held across filesystem I/O: fingerprints are
// computed outside and compared inside.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*list.Element
	lru      *list.List // front = most recently used
	capacity int
	maxCap   int
	ttl      time.Duration
	missTick uint64

	counters Counters

	// fingerprint is swappable for tests; defaults to PathFingerprint.
	fingerprint func(path string) (Fingerprint, error)
}

// New creates a Cache. There are no package-level singletons: construct one
// at process start and hand the same instance to every consumer. The cache
// is purely in-memory, so it needs no teardown.
func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	metrics.CacheCapacity.Set(float64(capacity))
	return &Cache{
		entries:     make(map[Key]*list.Element),
		lru:         list.New(),
		capacity:    capacity,
		maxCap:      capacity,
		ttl:         ttl,
		fingerprint: PathFingerprint,
	}
}

// Get returns the cached listing for key, if present and still valid.
// Expired entries and list-namespace entries whose fingerprint no longer
// matches are evicted and reported as misses.
func (c *Cache) Get(key Key) (Listing, bool) {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.miss(key)
		c.mu.Unlock()
		return Listing{}, false
	}

	entry := elem.Value.(*cacheEntry)
	if time.Since(entry.cachedAt) > c.ttl {
		c.removeLocked(elem, "ttl")
		c.miss(key)
		c.mu.Unlock()
		return Listing{}, false
	}

	if key.NS != NSList {
		// Browse keys trust the TTL alone.
		c.lru.MoveToFront(elem)
		c.counters.Hits++
		metrics.CacheHits.WithLabelValues(string(key.NS)).Inc()
		listing := entry.listing
		c.mu.Unlock()
		return listing, true
	}

	cached := entry.fp
	c.mu.Unlock()

	// Fingerprint I/O happens outside the lock.
	current, err := c.fingerprint(key.Path)

	c.mu.Lock()
	defer c.mu.Unlock()

	// The entry may have been invalidated while unlocked.
	elem, ok = c.entries[key]
	if !ok {
		c.miss(key)
		return Listing{}, false
	}
	entry = elem.Value.(*cacheEntry)

	if err != nil || current != cached {
		c.removeLocked(elem, "ttl")
		c.miss(key)
		return Listing{}, false
	}

	c.lru.MoveToFront(elem)
	c.counters.Hits++
	metrics.CacheHits.WithLabelValues(string(key.NS)).Inc()
	return entry.listing, true
}

// Put stores a listing under key, replacing any previous value and evicting
// from the LRU end on capacity overflow. The fingerprint stat runs before
// the lock is taken.
func (c *Cache) Put(key Key, listing Listing) {
	fp, err := c.fingerprint(key.Path)
	if err != nil {
		// A path that cannot be stat'd is not worth caching.
		logging.Debug("Not caching %s: %v", key.Path, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.listing = listing
		entry.fp = fp
		entry.cachedAt = time.Now()
		c.lru.MoveToFront(elem)
		return
	}

	entry := &cacheEntry{
		key:      key,
		listing:  listing,
		fp:       fp,
		cachedAt: time.Now(),
	}
	c.entries[key] = c.lru.PushFront(entry)
	metrics.CacheEntries.Set(float64(len(c.entries)))

	for len(c.entries) > c.capacity {
		c.evictOldestLocked("capacity")
	}
}

// Invalidate removes both namespace keys for an exact path.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ns := range []Namespace{NSList, NSBrowse} {
		if elem, ok := c.entries[Key{NS: ns, Path: path}]; ok {
			c.removeLocked(elem, "invalidation")
			c.counters.Invalidations++
		}
	}
}

// InvalidateTree removes both namespace keys for a path and every cached
// key whose path is a descendant of it.
func (c *Cache) InvalidateTree(path string) {
	prefix := path + "/"

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, elem := range c.entries {
		if key.Path == path || strings.HasPrefix(key.Path, prefix) {
			c.removeLocked(elem, "invalidation")
			c.counters.Invalidations++
		}
	}
}

// Shrink halves the effective capacity and evicts down to the new target.
// Called by the memory monitor under pressure instead of waiting for the
// next natural overflow. Clear restores the configured capacity.
func (c *Cache) Shrink() {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.capacity / 2
	if target < minCapacity {
		target = minCapacity
	}
	if target >= c.capacity {
		return
	}
	c.capacity = target
	metrics.CacheCapacity.Set(float64(c.capacity))
	logging.Warn("Listing cache shrinking to %d entries under memory pressure", target)

	for len(c.entries) > c.capacity {
		c.evictOldestLocked("shrink")
	}
}

// Clear drops every entry, resets the counters, and restores the configured
// capacity. This is the only operation that resets counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[Key]*list.Element)
	c.lru.Init()
	c.counters = Counters{}
	c.capacity = c.maxCap
	c.missTick = 0

	metrics.CacheEntries.Set(0)
	metrics.CacheCapacity.Set(float64(c.capacity))
	metrics.CacheEvictions.WithLabelValues("clear").Add(float64(n))
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the current effective capacity.
func (c *Cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// miss records a miss and runs the periodic expired-entry sweep. Caller
// holds the lock.
func (c *Cache) miss(key Key) {
	c.counters.Misses++
	metrics.CacheMisses.WithLabelValues(string(key.NS)).Inc()

	c.missTick++
	if c.missTick%sweepEvery == 0 {
		c.sweepLocked()
	}
}

// sweepLocked drops every TTL-expired entry. Caller holds the lock.
func (c *Cache) sweepLocked() {
	now := time.Now()
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		entry := elem.Value.(*cacheEntry)
		if now.Sub(entry.cachedAt) > c.ttl {
			c.removeLocked(elem, "ttl")
		}
		elem = prev
	}
}

func (c *Cache) evictOldestLocked(reason string) {
	oldest := c.lru.Back()
	if oldest == nil {
		return
	}
	c.removeLocked(oldest, reason)
}

func (c *Cache) removeLocked(elem *list.Element, reason string) {
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
	if reason != "invalidation" {
		// Invalidations have their own counter.
		c.counters.Evictions++
	}
	metrics.CacheEvictions.WithLabelValues(reason).Inc()
	metrics.CacheEntries.Set(float64(len(c.entries)))
}
