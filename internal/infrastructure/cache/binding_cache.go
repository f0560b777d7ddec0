package cache

import (
	"sync"

	"github.com/google/uuid"
)

// BindingCache holds the asset to model version bindings served to the
// prediction path. The map is replaced wholesale on each refresh; readers
// always see either the previous complete view or the new one.
type BindingCache struct {
	mu       sync.RWMutex
	bindings map[uuid.UUID]uuid.UUID
}

// NewBindingCache creates an empty binding cache
func NewBindingCache() *BindingCache {
	return &BindingCache{
		bindings: make(map[uuid.UUID]uuid.UUID),
	}
}

// Lookup returns the version bound to an asset, if any
func (c *BindingCache) Lookup(assetID uuid.UUID) (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	versionID, ok := c.bindings[assetID]
	return versionID, ok
}

// Replace swaps in a complete new binding view
func (c *BindingCache) Replace(bindings map[uuid.UUID]uuid.UUID) {
	if bindings == nil {
		bindings = make(map[uuid.UUID]uuid.UUID)
	}
	c.mu.Lock()
	c.bindings = bindings
	c.mu.Unlock()
}

// Size returns the number of cached bindings
func (c *BindingCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bindings)
}
