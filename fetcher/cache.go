package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"propsyncd/models"
)

// Cache is a small in-memory TTL cache for fetched catalogs, keyed by a
// stable hash of the source identity.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	records   []models.RawRecord
	expiresAt time.Time
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

func (c *Cache) Get(key string) ([]models.RawRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.records, true
}

func (c *Cache) Set(key string, records []models.RawRecord, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{records: records, expiresAt: time.Now().Add(ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// cacheKey hashes (sourceURL, name) so keys stay opaque and fixed-width no
// matter what the configured URL looks like.
func cacheKey(sourceURL, name string) string {
	sum := sha256.Sum256([]byte(sourceURL + "|" + name))
	return hex.EncodeToString(sum[:])
}
