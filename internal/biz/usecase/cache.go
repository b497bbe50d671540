package usecase

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// ResponseCache is a fixed-capacity TTL memo store for generated replies.
// Eviction is by insertion order; reads do not refresh position.
type ResponseCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	entries  map[string]*list.Element
}

// NewResponseCache creates a response cache
func NewResponseCache(capacity int, ttl time.Duration) *ResponseCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ResponseCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the cached value, dropping it if expired
func (c *ResponseCache) Get(key string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	e := el.Value.(*cacheEntry)
	if !now.Before(e.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

// Set stores value under key. A new key at capacity evicts the oldest insertion.
func (c *ResponseCache) Set(key, value string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*cacheEntry)
		e.value = value
		e.expiresAt = now.Add(c.ttl)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: now.Add(c.ttl),
	})
}

// Len returns the number of stored entries, expired ones included
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CacheKey normalizes a question into a cache key
func CacheKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
