package license

import (
	"sync"
	"time"
)

// CacheEntry wraps a status snapshot with its absolute expiry instant
type CacheEntry struct {
	Status   Status    `json:"status"`
	CachedAt time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Cache provides TTL caching for license status lookups keyed by client ID.
// Every entry carries its own expiry; a Get on an expired entry evicts it
// and reports a miss. There is no eviction policy beyond TTL and the size
// cap, which is acceptable because the keyspace (client IDs) is small and
// self-expiring.
type Cache struct {
	entries   map[string]CacheEntry
	mutex     sync.Mutex
	ttl       time.Duration
	maxSize   int
	hitCount  int64
	missCount int64
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// CacheStats reports cumulative cache counters
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxSize    int     `json:"max_size"`
	HitCount   int64   `json:"hit_count"`
	MissCount  int64   `json:"miss_count"`
	HitRate    float64 `json:"hit_rate"`
	TTLSeconds float64 `json:"ttl_seconds"`
}

// NewCache creates a status cache with the given per-entry TTL and size cap
func NewCache(ttl time.Duration, maxSize int) *Cache {
	cache := &Cache{
		entries:  make(map[string]CacheEntry),
		ttl:      ttl,
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// Get retrieves a cached status. Expired entries are evicted and counted as
// misses.
func (c *Cache) Get(clientID string) (Status, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[clientID]
	if !exists {
		c.missCount++
		return Status{}, false
	}

	if time.Now().After(entry.ExpiresAt) {
		delete(c.entries, clientID)
		c.missCount++
		return Status{}, false
	}

	c.hitCount++
	return entry.Status, true
}

// Set stores a status snapshot under the cache TTL
func (c *Cache) Set(clientID string, status Status) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.maxSize <= 0 {
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[clientID] = CacheEntry{
		Status:    status,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
}

// Delete removes a client's entry
func (c *Cache) Delete(clientID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, clientID)
}

// Clear removes all entries without resetting counters
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]CacheEntry)
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	total := c.hitCount + c.missCount
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(c.hitCount) / float64(total)
	}

	return CacheStats{
		Entries:    len(c.entries),
		MaxSize:    c.maxSize,
		HitCount:   c.hitCount,
		MissCount:  c.missCount,
		HitRate:    hitRate,
		TTLSeconds: c.ttl.Seconds(),
	}
}

func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.CachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CachedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Stop gracefully stops the cache cleanup goroutine
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.ExpiresAt) {
					delete(c.entries, key)
				}
			}
			c.mutex.Unlock()
		case <-c.stopChan:
			return
		}
	}
}
