package cache

import (
	"container/list"
	"sync"

	"github.com/aastreli/ml-service/internal/ml"
	"github.com/google/uuid"
)

// ModelCache is a bounded LRU cache of loaded model runtimes keyed by
// version ID. Loaded models are shared read-only between requests, so a
// hit hands out the same *ml.Model to all callers.
type ModelCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[uuid.UUID]*list.Element
}

type cacheItem struct {
	versionID uuid.UUID
	model     *ml.Model
}

// NewModelCache creates an LRU cache holding at most capacity models
func NewModelCache(capacity int) *ModelCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ModelCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[uuid.UUID]*list.Element, capacity),
	}
}

// Get returns the cached model for a version and marks it most recently
// used.
func (c *ModelCache) Get(versionID uuid.UUID) (*ml.Model, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[versionID]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheItem).model, true
}

// Put inserts or refreshes a model, evicting the least recently used
// entry when the cache is full.
func (c *ModelCache) Put(versionID uuid.UUID, model *ml.Model) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[versionID]; ok {
		elem.Value.(*cacheItem).model = model
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheItem).versionID)
		}
	}

	c.items[versionID] = c.order.PushFront(&cacheItem{versionID: versionID, model: model})
}

// Remove drops a version from the cache if present
func (c *ModelCache) Remove(versionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[versionID]; ok {
		c.order.Remove(elem)
		delete(c.items, versionID)
	}
}

// Retain drops every cached version not present in keep. Called after a
// registry refresh so evicted or deleted versions stop serving.
func (c *ModelCache) Retain(keep map[uuid.UUID]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, elem := range c.items {
		if _, ok := keep[id]; !ok {
			c.order.Remove(elem)
			delete(c.items, id)
		}
	}
}

// Len returns the number of cached models
func (c *ModelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge empties the cache
func (c *ModelCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[uuid.UUID]*list.Element, c.capacity)
}
