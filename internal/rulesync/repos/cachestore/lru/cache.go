package lru

import (
	"context"
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rulesync/internal/rulesync/domain"
	"github.com/haukened/rulesync/internal/rulesync/repos/store"
)

// Stats reports cumulative cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// Cache is a read-through LRU in front of a store.CacheStore. Writes go to
// the backing store first and only then replace the cached entry.
type Cache struct {
	lru       *lru.Cache[string, domain.ServerCache]
	next      store.CacheStore
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a Cache holding up to size server caches.
func New(size int, next store.CacheStore) (*Cache, error) {
	c := &Cache{next: next}
	l, err := lru.NewWithEvict(size, func(string, domain.ServerCache) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Cache returns the server cache, loading it from the backing store on a miss.
// Missing caches are not memoized so a later refresh is seen immediately.
func (c *Cache) Cache(ctx context.Context, serverID string) (*domain.ServerCache, error) {
	if v, ok := c.lru.Get(serverID); ok {
		c.hits.Add(1)
		return clone(v), nil
	}
	c.misses.Add(1)

	v, err := c.next.Cache(ctx, serverID)
	if err != nil || v == nil {
		return nil, err
	}
	c.lru.Add(serverID, *clone(*v))
	return v, nil
}

// PutCache writes through to the backing store.
func (c *Cache) PutCache(ctx context.Context, serverID string, sc domain.ServerCache) error {
	if err := c.next.PutCache(ctx, serverID, sc); err != nil {
		c.lru.Remove(serverID)
		return err
	}
	c.lru.Add(serverID, *clone(sc))
	return nil
}

// Invalidate drops a cached entry.
func (c *Cache) Invalidate(serverID string) { c.lru.Remove(serverID) }

// Stats returns cumulative hit/miss/eviction counters and the current size.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.lru.Len(),
	}
}

// clone copies the slices so callers cannot mutate cached state. A nil Rules
// slice stays nil.
func clone(sc domain.ServerCache) *domain.ServerCache {
	out := sc
	out.Rules = slices.Clone(sc.Rules)
	out.Blocklists = slices.Clone(sc.Blocklists)
	out.Rewrites = slices.Clone(sc.Rewrites)
	out.Clients = slices.Clone(sc.Clients)
	return &out
}

var _ store.CacheStore = (*Cache)(nil)
