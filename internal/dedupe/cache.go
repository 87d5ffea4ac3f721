// ABOUTME: Thread-safe TTL cache keyed by platform message id (mid).
// ABOUTME: Absorbs Messenger webhook redeliveries without unbounded growth.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the timestamp and list element for a cached mid.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache tracks recently seen Messenger message IDs. The platform resends
// a webhook until it is ACKed, so the same mid can arrive more than once;
// a mid found here is skipped instead of relayed again. Entries expire
// after a TTL and the oldest entry is evicted at capacity, keeping memory
// bounded for long-running processes.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // mids in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine periodically removes expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Seen atomically checks whether mid was already recorded and records it
// if not. Returns true for a redelivery (skip it), false for a first
// delivery (process it). The check and the mark are one critical section
// so two concurrent deliveries of the same mid cannot both pass.
func (c *Cache) Seen(mid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[mid]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return true
	}

	c.recordLocked(mid)
	return false
}

// recordLocked inserts or refreshes a mid. Must be called with mu held.
func (c *Cache) recordLocked(mid string) {
	now := time.Now()

	if entry, exists := c.seen[mid]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(mid)
	c.seen[mid] = &cacheEntry{timestamp: now, element: elem}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	mid, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, mid)
}

// cleanup periodically drops expired entries until Close.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for mid, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, mid)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call twice.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
