// Package item provides the inventory items (vật tư) read from the remote
// inventory service.
package item

import (
	"strings"

	"dentalstock/internal/core/apperror"
	"dentalstock/internal/domain/catalogs/unit"
)

// WarehouseType is the storage category of an item.
type WarehouseType string

const (
	WarehouseCold   WarehouseType = "COLD"   // Kho lạnh
	WarehouseNormal WarehouseType = "NORMAL" // Kho thường
)

// ParseWarehouseType accepts any casing of COLD/NORMAL.
func ParseWarehouseType(s string) (WarehouseType, error) {
	wt := WarehouseType(strings.ToUpper(strings.TrimSpace(s)))
	if !wt.IsValid() {
		return "", apperror.NewValidation("invalid warehouse type").
			WithDetail("field", "warehouseType").
			WithDetail("value", s)
	}
	return wt, nil
}

// IsValid reports whether wt is a known warehouse type.
func (wt WarehouseType) IsValid() bool {
	return wt == WarehouseCold || wt == WarehouseNormal
}

// InventoryItem is a stockable item.
type InventoryItem struct {
	ID   int64  `json:"id"`
	Code string `json:"itemCode"`
	Name string `json:"itemName"`

	// IsTool marks reusable instruments exempt from mandatory expiry dates.
	IsTool bool `json:"isTool"`

	WarehouseType WarehouseType `json:"warehouseType"`

	MinStockLevel int64 `json:"minStockLevel"`
	MaxStockLevel int64 `json:"maxStockLevel"`

	// TotalQuantityOnHand is the sum of all open batches, in base units.
	TotalQuantityOnHand int64 `json:"totalQuantityOnHand"`

	Units []unit.Definition `json:"units,omitempty"`
}

// Availability classifies an item for the batch selector's item list.
type Availability int

const (
	// Available items are selectable.
	Available Availability = iota
	// LowStock items are selectable but flagged (0 < on hand ≤ min).
	LowStock
	// Disabled items are listed but cannot be selected (on hand ≤ 0).
	Disabled
)

func (a Availability) String() string {
	switch a {
	case LowStock:
		return "low-stock"
	case Disabled:
		return "out-of-stock"
	default:
		return "available"
	}
}

// Availability returns how the item is presented in the export item list.
func (it *InventoryItem) Availability() Availability {
	switch {
	case it.TotalQuantityOnHand <= 0:
		return Disabled
	case it.TotalQuantityOnHand <= it.MinStockLevel:
		return LowStock
	default:
		return Available
	}
}

// Selectable reports whether the item can be chosen for export.
func (it *InventoryItem) Selectable() bool {
	return it.Availability() != Disabled
}

// BaseUnit returns the base unit among the item's embedded units, if any.
func (it *InventoryItem) BaseUnit() *unit.Definition {
	return unit.BaseOf(it.Units)
}
