// Package querycache memoizes answers by query text with bounded LRU eviction.
//
// Example usage:
//
//	cache, _ := querycache.New(100)
//	key := querycache.Key(question)
//	gen := cache.Generation()
//	if entry, ok := cache.Get(key); ok {
//		return entry.Answer
//	}
//	cache.PutIfGeneration(key, querycache.Entry{Answer: answer}, gen)
package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/ragvisor/internal/chunking"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCapacity is the number of answers kept when no capacity is configured.
const DefaultCapacity = 100

// ErrInvalidCapacity is returned for a non-positive capacity.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// Entry is a cached answer with the chunks it was generated from.
type Entry struct {
	Answer    string
	Documents []string
	Metadatas []chunking.Metadata
}

// Cache is a thread-safe LRU cache of answers.
//
// One mutex guards every operation, including the recency update on Get.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, Entry]
	capacity int
	metrics  *Metrics

	// generation increments on every Clear.
	generation uint64
}

// New creates a cache holding at most capacity entries.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	c := &Cache{capacity: capacity}
	lru, err := simplelru.NewLRU[string, Entry](capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}
	c.lru = lru
	return c, nil
}

// SetMetrics attaches Prometheus metrics. Optional.
func (c *Cache) SetMetrics(m *Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
	if m != nil {
		m.Size.Set(float64(c.lru.Len()))
	}
}

// Key returns the cache key for a query: hex sha256 of the trimmed text.
func Key(query string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(query)))
	return hex.EncodeToString(sum[:])
}

// Get returns the entry for key and marks it most recently used.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if c.metrics != nil {
		if ok {
			c.metrics.HitsTotal.Inc()
		} else {
			c.metrics.MissesTotal.Inc()
		}
	}
	return entry, ok
}

// Put stores entry under key, evicting the least recently used entry when full.
func (c *Cache) Put(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, entry)
	if c.metrics != nil {
		c.metrics.Size.Set(float64(c.lru.Len()))
	}
}

// Generation returns the number of Clear calls so far. Callers read it
// before computing an answer and pass it to PutIfGeneration.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// PutIfGeneration stores entry only if the cache has not been cleared since
// gen was read. It reports whether the entry was stored.
func (c *Cache) PutIfGeneration(key string, entry Entry, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false
	}
	c.lru.Add(key, entry)
	if c.metrics != nil {
		c.metrics.Size.Set(float64(c.lru.Len()))
	}
	return true
}

// Clear removes every entry and starts a new generation.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++

	// Purge fires the eviction callback; capacity evictions are counted separately.
	m := c.metrics
	c.metrics = nil
	c.lru.Purge()
	c.metrics = m
	if m != nil {
		m.Size.Set(0)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int {
	return c.capacity
}

// onEvict runs with c.mu held.
func (c *Cache) onEvict(string, Entry) {
	if c.metrics != nil {
		c.metrics.EvictionsTotal.Inc()
	}
}
