package usecases

import (
	"sync"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// tripCache holds the latest committed state of live trips. Stored trips are
// never mutated in place; writers replace them with a new copy.
type tripCache struct {
	mu    sync.RWMutex
	trips map[string]*domain.Trip
}

func newTripCache() *tripCache {
	return &tripCache{trips: make(map[string]*domain.Trip)}
}

func (c *tripCache) get(id string) *domain.Trip {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trips[id]
}

func (c *tripCache) put(t *domain.Trip) {
	c.mu.Lock()
	c.trips[t.ID] = t
	c.mu.Unlock()
}

// putIfNewer stores t unless a copy with the same or higher version exists,
// and returns whichever copy is now cached.
func (c *tripCache) putIfNewer(t *domain.Trip) *domain.Trip {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.trips[t.ID]; ok && cur.Version >= t.Version {
		return cur
	}
	c.trips[t.ID] = t
	return t
}

func (c *tripCache) drop(id string) {
	c.mu.Lock()
	delete(c.trips, id)
	c.mu.Unlock()
}

func (c *tripCache) find(match func(*domain.Trip) bool) []*domain.Trip {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*domain.Trip
	for _, t := range c.trips {
		if match(t) {
			out = append(out, t)
		}
	}
	return out
}
