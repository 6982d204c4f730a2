// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package pointcache caches extracted point results keyed by
// (dataset, rounded coordinate, date).
//
// The cache combines three mechanisms:
//   - TTL expiry, checked lazily on read and opportunistically on write
//   - least-recently-used eviction once the byte budget is exceeded,
//     trimming down to 80% of the budget
//   - single-flight population, so concurrent misses for one key share
//     a single extraction instead of duplicating file reads
//
// The implementation uses a doubly-linked list with sentinel nodes plus
// a map for O(1) lookup, promotion and eviction.
package pointcache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/oceanus/internal/metrics"
	"github.com/tomtom215/oceanus/internal/models"
)

// coordPrecision is the rounding applied to cache-key coordinates.
// Four decimal places is ~11m at the equator, far below any grid
// resolution served here, so distinct keys never alias distinct cells.
const coordPrecision = 1e4

// Key identifies one cached point extraction.
type Key struct {
	Dataset string
	Lat     float64
	Lon     float64

	// Date is the requested ISO date, or "latest" when none was given.
	Date string
}

// NewKey builds a normalized cache key with rounded coordinates.
func NewKey(dataset string, lat, lon float64, date string) Key {
	if date == "" {
		date = "latest"
	}
	return Key{
		Dataset: dataset,
		Lat:     roundCoord(lat),
		Lon:     roundCoord(lon),
		Date:    date,
	}
}

func roundCoord(v float64) float64 {
	if v < 0 {
		return float64(int64(v*coordPrecision-0.5)) / coordPrecision
	}
	return float64(int64(v*coordPrecision+0.5)) / coordPrecision
}

// String renders the key in its canonical map form.
func (k Key) String() string {
	return fmt.Sprintf("%s:%.4f:%.4f:%s", k.Dataset, k.Lat, k.Lon, k.Date)
}

// Entry is one cached extraction result.
type Entry struct {
	Values       map[string]models.DataValue
	Actual       *models.Location
	MatchedDate  string
	Source       string
	Fallback     *models.FallbackInfo
	ExtractionMs float64

	CreatedAt time.Time
}

// cost approximates the entry's resident size in bytes. Exactness does
// not matter; the budget only needs to track growth proportionally.
func (e *Entry) cost() int64 {
	c := int64(128)
	for name, v := range e.Values {
		c += int64(len(name)) + int64(len(v.Units)) + int64(len(v.LongName)) + 48
	}
	c += int64(len(e.MatchedDate)) + int64(len(e.Source))
	return c
}

// node is a linked-list node; head.next is most recently used.
type node struct {
	key       string
	entry     *Entry
	cost      int64
	expiresAt time.Time
	prev      *node
	next      *node
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	Entries   int
	CostBytes int64
}

// Cache is a thread-safe TTL+LRU point-result cache with single-flight
// population.
type Cache struct {
	mu sync.Mutex

	items map[string]*node
	head  *node
	tail  *node

	budget int64
	cost   int64
	ttl    time.Duration

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	group singleflight.Group
}

// Default sizing applied when the configuration leaves values zero.
const (
	DefaultTTL    = 30 * time.Minute
	DefaultBudget = 64 << 20 // 64 MiB

	// evictTarget is the fraction of budget evicted down to once the
	// budget is exceeded.
	evictTarget = 0.8
)

// New creates a cache with the given byte budget and default TTL.
func New(budgetBytes int64, ttl time.Duration) *Cache {
	if budgetBytes <= 0 {
		budgetBytes = DefaultBudget
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		items:  make(map[string]*node),
		head:   &node{},
		tail:   &node{},
		budget: budgetBytes,
		ttl:    ttl,
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the entry for key if present and unexpired, promoting it
// to most recently used.
func (c *Cache) Get(key Key) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key.String()]
	if !ok {
		c.misses++
		metrics.CacheMisses.Inc()
		return nil, false
	}
	if time.Now().After(n.expiresAt) {
		c.removeLocked(n)
		c.expired++
		c.misses++
		metrics.CacheMisses.Inc()
		return nil, false
	}

	c.promoteLocked(n)
	c.hits++
	metrics.CacheHits.Inc()
	return n.entry, true
}

// Put stores an entry under key with the given TTL (zero uses the cache
// default). At most one entry exists per key; a concurrent Put for the
// same key replaces the previous one. Expired entries are swept
// opportunistically and the LRU tail is evicted while over budget.
func (c *Cache) Put(key Key, entry *Entry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ks := key.String()
	if old, ok := c.items[ks]; ok {
		c.removeLocked(old)
	}

	n := &node{
		key:       ks,
		entry:     entry,
		cost:      entry.cost(),
		expiresAt: time.Now().Add(ttl),
	}
	c.items[ks] = n
	c.insertFrontLocked(n)
	c.cost += n.cost

	c.sweepExpiredLocked(time.Now())
	if c.cost > c.budget {
		c.evictLocked()
	}
}

// Do returns the cached entry for key, or runs extract exactly once for
// concurrent callers of the same missing key and caches its result.
// The boolean reports whether the entry came from cache (true) rather
// than from this or a shared extraction (false).
func (c *Cache) Do(key Key, ttl time.Duration, extract func() (*Entry, error)) (*Entry, bool, error) {
	if e, ok := c.Get(key); ok {
		return e, true, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		// Re-check under the flight: a racing caller may have populated
		// the key between our miss and the flight starting.
		if e, ok := c.Get(key); ok {
			return e, nil
		}
		e, err := extract()
		if err != nil {
			return nil, err
		}
		c.Put(key, e, ttl)
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}

// RemoveExpired sweeps all expired entries, returning the count
// removed. Called periodically by the janitor service.
func (c *Cache) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.items)
	c.sweepExpiredLocked(time.Now())
	return before - len(c.items)
}

// InvalidateDataset drops every entry belonging to a dataset. Used when
// recovery replaces files on disk.
func (c *Cache) InvalidateDataset(dataset string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := dataset + ":"
	removed := 0
	for n := c.head.next; n != c.tail; {
		next := n.next
		if len(n.key) > len(prefix) && n.key[:len(prefix)] == prefix {
			c.removeLocked(n)
			removed++
		}
		n = next
	}
	return removed
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*node)
	c.head.next = c.tail
	c.tail.prev = c.head
	c.cost = 0
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Entries:   len(c.items),
		CostBytes: c.cost,
	}
}

func (c *Cache) insertFrontLocked(n *node) {
	n.next = c.head.next
	n.prev = c.head
	c.head.next.prev = n
	c.head.next = n
}

func (c *Cache) promoteLocked(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	c.insertFrontLocked(n)
}

func (c *Cache) removeLocked(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	delete(c.items, n.key)
	c.cost -= n.cost
}

func (c *Cache) sweepExpiredLocked(now time.Time) {
	for n := c.head.next; n != c.tail; {
		next := n.next
		if now.After(n.expiresAt) {
			c.removeLocked(n)
			c.expired++
		}
		n = next
	}
}

// evictLocked removes least-recently-used entries until the cache is at
// or under evictTarget of its budget.
func (c *Cache) evictLocked() {
	target := int64(float64(c.budget) * evictTarget)
	for c.cost > target && c.tail.prev != c.head {
		c.removeLocked(c.tail.prev)
		c.evictions++
		metrics.CacheEvictions.Inc()
	}
}
