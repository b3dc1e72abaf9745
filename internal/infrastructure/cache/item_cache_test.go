package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dentalstock/internal/domain/catalogs/item"
	"dentalstock/internal/domain/documents"
)

type countingSource struct {
	mu    sync.Mutex
	calls int
	err   error
	items []item.InventoryItem
}

func (s *countingSource) ListItems(ctx context.Context, wt item.WarehouseType) ([]item.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []item.InventoryItem
	for _, it := range s.items {
		if it.WarehouseType == wt {
			out = append(out, it)
		}
	}
	return out, nil
}

func newSource() *countingSource {
	return &countingSource{items: []item.InventoryItem{
		{ID: 1, Code: "VT001", WarehouseType: item.WarehouseCold, TotalQuantityOnHand: 25},
		{ID: 4, Code: "VT004", WarehouseType: item.WarehouseNormal, TotalQuantityOnHand: 100},
	}}
}

func TestItemCache_HitsWithinTTL(t *testing.T) {
	src := newSource()
	c := NewItemCache(src, time.Minute)
	now := time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		items, err := c.ListItems(ctx, item.WarehouseCold)
		require.NoError(t, err)
		require.Len(t, items, 1)
	}
	assert.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Minute)
	_, err := c.ListItems(ctx, item.WarehouseCold)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	stats := c.GetStats()
	assert.Equal(t, 2, stats.Hits)
	assert.Equal(t, 2, stats.Misses)
}

func TestItemCache_PerWarehouse(t *testing.T) {
	src := newSource()
	c := NewItemCache(src, 0)
	ctx := context.Background()

	cold, err := c.ListItems(ctx, item.WarehouseCold)
	require.NoError(t, err)
	normal, err := c.ListItems(ctx, item.WarehouseNormal)
	require.NoError(t, err)
	assert.Equal(t, "VT001", cold[0].Code)
	assert.Equal(t, "VT004", normal[0].Code)

	c.Invalidate(ctx, item.WarehouseCold, "test")
	_, err = c.ListItems(ctx, item.WarehouseNormal)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	_, err = c.ListItems(ctx, item.WarehouseCold)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestItemCache_ReturnsCopies(t *testing.T) {
	c := NewItemCache(newSource(), 0)
	ctx := context.Background()

	items, err := c.ListItems(ctx, item.WarehouseCold)
	require.NoError(t, err)
	items[0].Code = "changed"

	again, err := c.ListItems(ctx, item.WarehouseCold)
	require.NoError(t, err)
	assert.Equal(t, "VT001", again[0].Code)
}

func TestItemCache_ServesStaleOnFailure(t *testing.T) {
	src := newSource()
	c := NewItemCache(src, time.Minute)
	now := time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.ListItems(ctx, item.WarehouseCold)
	require.NoError(t, err)

	src.err = errors.New("service down")
	now = now.Add(time.Hour)
	items, err := c.ListItems(ctx, item.WarehouseCold)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, c.GetStats().StaleServed)

	_, err = c.ListItems(ctx, item.WarehouseNormal)
	assert.Error(t, err)
}

func TestItemCache_ClosedHook(t *testing.T) {
	src := newSource()
	c := NewItemCache(src, 0)
	ctx := context.Background()

	var events []string
	c.OnInvalidation(func(wt item.WarehouseType, reason string) {
		events = append(events, reason)
	})
	c.OnInvalidation(func(wt item.WarehouseType, reason string) { panic("listener bug") })

	_, err := c.ListItems(ctx, item.WarehouseCold)
	require.NoError(t, err)

	hook := c.ClosedHook()
	hook(ctx, documents.KindExport, documents.ClosedDiscarded)
	assert.Empty(t, events)
	assert.Len(t, c.GetStats().Cached, 1)

	hook(ctx, documents.KindExport, documents.ClosedSubmitted)
	assert.Equal(t, []string{"export submitted"}, events)
	assert.Empty(t, c.GetStats().Cached)
}
