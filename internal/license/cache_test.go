package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheHitWithinTTL(t *testing.T) {
	cache := NewCache(time.Minute, 10)
	defer cache.Stop()

	cache.Set("acme", Status{Active: true, ClientID: "acme"})

	status, ok := cache.Get("acme")
	require.True(t, ok)
	assert.True(t, status.Active)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(0), stats.MissCount)
}

func TestCacheExpiredEntryIsEvictedOnRead(t *testing.T) {
	cache := NewCache(10*time.Millisecond, 10)
	defer cache.Stop()

	cache.Set("acme", Status{Active: true})
	time.Sleep(25 * time.Millisecond)

	_, ok := cache.Get("acme")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Stats().Entries, "expired entry should be gone after the read")
	assert.Equal(t, int64(1), cache.Stats().MissCount)
}

func TestCacheMissForUnknownClient(t *testing.T) {
	cache := NewCache(time.Minute, 10)
	defer cache.Stop()

	_, ok := cache.Get("unknown")
	assert.False(t, ok)
	assert.Equal(t, int64(1), cache.Stats().MissCount)
}

func TestCacheDelete(t *testing.T) {
	cache := NewCache(time.Minute, 10)
	defer cache.Stop()

	cache.Set("acme", Status{Active: true})
	cache.Delete("acme")

	_, ok := cache.Get("acme")
	assert.False(t, ok)
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	cache := NewCache(time.Minute, 2)
	defer cache.Stop()

	cache.Set("first", Status{ClientID: "first"})
	time.Sleep(2 * time.Millisecond)
	cache.Set("second", Status{ClientID: "second"})
	time.Sleep(2 * time.Millisecond)
	cache.Set("third", Status{ClientID: "third"})

	_, ok := cache.Get("first")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = cache.Get("third")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Stats().Entries)
}

func TestCacheZeroSizeNeverStores(t *testing.T) {
	cache := NewCache(time.Minute, 0)
	defer cache.Stop()

	cache.Set("acme", Status{Active: true})
	_, ok := cache.Get("acme")
	assert.False(t, ok)
}

func TestCacheStatsHitRate(t *testing.T) {
	cache := NewCache(time.Minute, 10)
	defer cache.Stop()

	cache.Set("acme", Status{Active: true})
	cache.Get("acme")
	cache.Get("acme")
	cache.Get("missing")

	stats := cache.Stats()
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
	assert.Equal(t, 60.0, stats.TTLSeconds)
}
