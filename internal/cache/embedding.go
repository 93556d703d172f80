// Package cache provides caching for the verification pipeline.
//
// EmbeddingCache keeps claim→vector mappings in memory so re-verifying
// overlapping text does not re-embed every sentence; VerificationCache
// stores whole verification results in Redis keyed by library and input.
package cache

import (
	"sync"
	"time"
)

// EmbeddingCache caches query embedding vectors keyed by claim-text hash.
// Thread-safe; entries expire after the TTL.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string]*embeddingEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

type embeddingEntry struct {
	vec       []float32
	expiresAt time.Time
}

// NewEmbeddingCache creates an EmbeddingCache with the given TTL and starts
// background cleanup.
func NewEmbeddingCache(ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	c := &EmbeddingCache{
		entries: make(map[string]*embeddingEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns a cached vector if present and not expired. Implements
// service.VectorCache.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.vec, true
}

// Set stores a vector in the cache.
func (c *EmbeddingCache) Set(key string, vec []float32) {
	c.mu.Lock()
	c.entries[key] = &embeddingEntry{
		vec:       vec,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Len returns the number of entries in the cache.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop halts the background cleanup goroutine.
func (c *EmbeddingCache) Stop() {
	close(c.stopCh)
}

// cleanup removes expired entries every 5 minutes.
func (c *EmbeddingCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}
