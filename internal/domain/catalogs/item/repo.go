package item

import (
	"context"
	"strings"
)

// Source lists inventory items of one warehouse type
// (GET items?warehouseType=).
type Source interface {
	ListItems(ctx context.Context, warehouseType WarehouseType) ([]InventoryItem, error)
}

// FindByCode returns the item with the given code (case-insensitive), or nil.
func FindByCode(items []InventoryItem, code string) *InventoryItem {
	for i := range items {
		if strings.EqualFold(items[i].Code, code) {
			return &items[i]
		}
	}
	return nil
}

// FindByID returns the item with the given id, or nil.
func FindByID(items []InventoryItem, id int64) *InventoryItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}
