// Package cache keeps recent file reports keyed by path and validated by a
// content hash, so unchanged files are not re-analyzed.
package cache

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/QTest-hq/queryscope/internal/analyzer"
)

// Stats reports cache effectiveness
type Stats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type entry struct {
	path   string
	hash   uint64
	report *analyzer.FileReport
}

// Cache is a bounded map from path to the report of a specific revision.
// When full, the entry inserted first is evicted. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
	stats   Stats
}

// New creates a cache holding up to maxEntries reports. A cache with
// maxEntries <= 0 stores nothing.
func New(maxEntries int) *Cache {
	return &Cache{
		max:     maxEntries,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Hash returns the revision hash of file content
func Hash(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// Get returns the cached report when path was stored with identical content
func (c *Cache) Get(path string, content []byte) (*analyzer.FileReport, bool) {
	hash := Hash(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		if e := el.Value.(*entry); e.hash == hash {
			c.stats.Hits++
			return e.report, true
		}
	}
	c.stats.Misses++
	return nil, false
}

// Put stores the report for path at the given content revision
func (c *Cache) Put(path string, content []byte, report *analyzer.FileReport) {
	if c.max <= 0 {
		return
	}
	hash := Hash(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		e := el.Value.(*entry)
		e.hash = hash
		e.report = report
		return
	}

	c.entries[path] = c.order.PushBack(&entry{path: path, hash: hash, report: report})
	for c.order.Len() > c.max {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).path)
		c.stats.Evictions++
	}
}

// Invalidate drops the entry for path
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		c.order.Remove(el)
		delete(c.entries, path)
	}
}

// Len returns the number of cached reports
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.order.Len()
	return s
}
