// Package cache provides caching infrastructure.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dentalstock/internal/domain/catalogs/item"
	"dentalstock/internal/domain/documents"
	"dentalstock/pkg/logger"
)

// ItemCache caches item listings per warehouse type in front of an
// item.Source. Entries expire after a TTL and are invalidated explicitly
// after a document is submitted, since the submission changes stock levels.
// When a reload fails and an older listing exists, the older listing is
// served so a failing service does not blank the item list.
type ItemCache struct {
	source item.Source
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[item.WarehouseType]entry
	stats   CacheStats

	// Listeners for cache invalidation
	listeners   []InvalidationListener
	listenersMu sync.RWMutex
}

type entry struct {
	items    []item.InventoryItem
	loadedAt time.Time
}

// InvalidationListener is called when a listing is invalidated. wt is empty
// when every listing was dropped.
type InvalidationListener func(wt item.WarehouseType, reason string)

// CacheStats are the cache counters.
type CacheStats struct {
	Hits          int
	Misses        int
	StaleServed   int
	Invalidations int
	Cached        []item.WarehouseType
}

var _ item.Source = (*ItemCache)(nil)

// NewItemCache creates a cache over source. A ttl ≤ 0 keeps entries until
// invalidated.
func NewItemCache(source item.Source, ttl time.Duration) *ItemCache {
	return &ItemCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[item.WarehouseType]entry),
	}
}

// ListItems returns the cached listing for wt, loading it when missing or
// expired.
func (c *ItemCache) ListItems(ctx context.Context, wt item.WarehouseType) ([]item.InventoryItem, error) {
	c.mu.RLock()
	e, ok := c.entries[wt]
	c.mu.RUnlock()

	if ok && c.fresh(e) {
		c.mu.Lock()
		c.stats.Hits++
		c.mu.Unlock()
		return append([]item.InventoryItem(nil), e.items...), nil
	}

	items, err := c.source.ListItems(ctx, wt)
	if err != nil {
		if ok {
			c.mu.Lock()
			c.stats.StaleServed++
			c.mu.Unlock()
			logger.Warn(ctx, "serving stale item list", "warehouse_type", wt, "error", err)
			return append([]item.InventoryItem(nil), e.items...), nil
		}
		return nil, fmt.Errorf("load items for %s: %w", wt, err)
	}

	c.mu.Lock()
	c.stats.Misses++
	c.entries[wt] = entry{items: append([]item.InventoryItem(nil), items...), loadedAt: c.now()}
	c.mu.Unlock()

	logger.Debug(ctx, "loaded item list", "warehouse_type", wt, "count", len(items))
	return items, nil
}

func (c *ItemCache) fresh(e entry) bool {
	return c.ttl <= 0 || c.now().Sub(e.loadedAt) < c.ttl
}

// Invalidate drops the listing of wt.
func (c *ItemCache) Invalidate(ctx context.Context, wt item.WarehouseType, reason string) {
	c.mu.Lock()
	delete(c.entries, wt)
	c.stats.Invalidations++
	c.mu.Unlock()

	logger.Debug(ctx, "item list invalidated", "warehouse_type", wt, "reason", reason)
	c.notify(ctx, wt, reason)
}

// InvalidateAll drops every listing.
func (c *ItemCache) InvalidateAll(ctx context.Context, reason string) {
	c.mu.Lock()
	c.entries = make(map[item.WarehouseType]entry)
	c.stats.Invalidations++
	c.mu.Unlock()

	logger.Debug(ctx, "item lists invalidated", "reason", reason)
	c.notify(ctx, "", reason)
}

// ClosedHook returns a composer hook that drops every listing after a
// document is accepted. Discarded documents leave the cache alone.
func (c *ItemCache) ClosedHook() documents.ClosedHook {
	return func(ctx context.Context, kind documents.Kind, reason documents.CloseReason) {
		if reason != documents.ClosedSubmitted {
			return
		}
		c.InvalidateAll(ctx, string(kind)+" submitted")
	}
}

// notify calls listeners with panic recovery, one after another.
func (c *ItemCache) notify(ctx context.Context, wt item.WarehouseType, reason string) {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, listener := range c.listeners {
		func(l InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "listener panic recovered", "warehouse_type", wt, "panic", r)
				}
			}()
			l(wt, reason)
		}(listener)
	}
}

// OnInvalidation registers a callback for cache invalidation events.
func (c *ItemCache) OnInvalidation(listener InvalidationListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, listener)
	c.listenersMu.Unlock()
}

// GetStats returns current cache statistics.
func (c *ItemCache) GetStats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Cached = make([]item.WarehouseType, 0, len(c.entries))
	for wt := range c.entries {
		s.Cached = append(s.Cached, wt)
	}
	return s
}
