// Package emoji implements the bounded, TTL+LRU cache of normalized emoji
// images referenced by danmaku messages, plus the download→decode→encode
// ingest pipeline that populates it.
package emoji

import (
	"sort"
	"sync"
	"time"
)

// Sizing constants for the cache and its concurrency gates: TTL is an
// entry's idle lifetime, MaxEntries bounds the store, GlobalConcurrency
// and PerUserConcurrency bound simultaneous downloads, and
// MaintenanceInterval is how often the sweep and gate cleanup run.
const (
	TTL                 = 600 * time.Second
	MaxEntries          = 200
	GlobalConcurrency   = 10
	PerUserConcurrency  = 3
	MaintenanceInterval = 30 * time.Second
	GateIdleAfter       = TTL
)

// Entry is one cached emoji's encoded bytes and metadata.
type Entry struct {
	Data        []byte
	ContentType string

	lastAccess time.Time
	expiresAt  time.Time
}

// Cache is a bounded, TTL+LRU keyed store. Safe for concurrent use; the
// maintenance sweep runs under the same lock as Get/Set so it can never
// race a lookup.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	ttl        time.Duration
	maxEntries int
}

// NewCache constructs an empty cache. ttl is the idle lifetime of an entry
// and is extended on every Get hit; maxEntries bounds the store size,
// enforced by the maintenance sweep rather than on every Set.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		entries:    map[string]*Entry{},
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get returns the entry for key if present and unexpired. A hit refreshes
// last_access and extends expires_at by ttl, so an entry under continuous
// use never expires.
func (c *Cache) Get(now time.Time, key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || now.After(e.expiresAt) {
		return nil, false
	}
	e.lastAccess = now
	e.expiresAt = now.Add(c.ttl)
	cp := *e
	return &cp, true
}

// Has reports whether key is present and unexpired, without refreshing it.
// Used by the ingest pipeline to detect an already-cached key before
// inserting a duplicate.
func (c *Cache) Has(now time.Time, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && !now.After(e.expiresAt)
}

// Set unconditionally inserts or replaces the entry for key.
func (c *Cache) Set(now time.Time, key string, data []byte, contentType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &Entry{
		Data:        data,
		ContentType: contentType,
		lastAccess:  now,
		expiresAt:   now.Add(c.ttl),
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes returns the total size of all cached entries' encoded data, for
// the admin state endpoint's human-readable size summary.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, e := range c.entries {
		total += int64(len(e.Data))
	}
	return total
}

// Maintain runs one sweep: first evicting every expired entry, then, if
// the store still exceeds maxEntries, evicting least-recently-accessed
// entries until size equals maxEntries.
func (c *Cache) Maintain(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].lastAccess.Before(c.entries[keys[j]].lastAccess)
	})

	overflow := len(keys) - c.maxEntries
	for _, k := range keys[:overflow] {
		delete(c.entries, k)
	}
}

