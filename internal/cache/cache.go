package cache

import (
	"sync"
	"time"
)

// Cache remembers ids of messages that were already delivered, keyed to the
// time each message was created. An id is kept until the caller prunes
// everything created before the oldest window still being searched.
type Cache struct {
	mu        sync.RWMutex
	delivered map[string]time.Time
	hits      int
	pruned    int
}

func New() *Cache {
	return &Cache{
		delivered: make(map[string]time.Time),
	}
}

func (c *Cache) AddMessage(id string, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.delivered[id] = createdAt
}

// HasMessage reports whether id was delivered and not yet pruned.
func (c *Cache) HasMessage(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.delivered[id]; !exists {
		return false
	}
	c.hits++
	return true
}

// Prune forgets every id whose message was created before the given time and
// returns how many were removed. A search window starting at or after before
// can no longer return those messages.
func (c *Cache) Prune(before time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, createdAt := range c.delivered {
		if createdAt.Before(before) {
			delete(c.delivered, id)
			removed++
		}
	}
	c.pruned += removed
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.delivered)
}

func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"delivered_ids":   len(c.delivered),
		"duplicates_seen": c.hits,
		"pruned":          c.pruned,
	}
}
