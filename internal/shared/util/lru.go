package util

import (
	"container/list"
	"sync"
)

// LRUCache is a thread-safe, capacity-bounded Least-Recently-Used cache.
// When the cache is full the least-recently-used entry is evicted.
//
// Usage:
//
//	cache := NewLRUCache[string, []byte](512)
//	cache.Put("java.lang.String", data)
//	if v, ok := cache.Get("java.lang.String"); ok { ... }
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most-recently used

	hits   uint64
	misses uint64
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Len    int
	Hits   uint64
	Misses uint64
}

// NewLRUCache creates a new cache with the given capacity.
// Values <= 0 are normalised to 1.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the cached value and true if the key exists. A hit moves the
// entry to the front.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry[K, V]).value, true
}

// Put inserts or updates a key/value pair, evicting the least-recently-used
// entry when at capacity.
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*lruEntry[K, V]).value = value
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictLeastRecentLocked()
	}

	el := c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
	c.items[key] = el
}

// Evict removes a specific key from the cache.
func (c *LRUCache[K, V]) Evict(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.items, key)
}

// EvictIf removes every entry whose key satisfies match and returns how many were dropped.
func (c *LRUCache[K, V]) EvictIf(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, el := range c.items {
		if match(key) {
			c.order.Remove(el)
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Stats returns hit/miss counters since creation or the last Clear.
func (c *LRUCache[K, V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Len: c.order.Len(), Hits: c.hits, Misses: c.misses}
}

// Clear removes all items and resets counters.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[K]*list.Element, c.capacity)
	c.hits, c.misses = 0, 0
}

// evictLeastRecentLocked removes the back element. Caller must hold c.mu.
func (c *LRUCache[K, V]) evictLeastRecentLocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.order.Remove(back)
	delete(c.items, back.Value.(*lruEntry[K, V]).key)
}
