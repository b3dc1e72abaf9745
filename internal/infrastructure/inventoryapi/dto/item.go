// Package dto holds the wire shapes of the inventory service.
package dto

import (
	"github.com/shopspring/decimal"

	"dentalstock/internal/core/types"
	"dentalstock/internal/domain/batch"
	"dentalstock/internal/domain/catalogs/item"
	"dentalstock/internal/domain/catalogs/unit"
)

// ItemResponse is one entry of GET items.
type ItemResponse struct {
	ID                  int64          `json:"id"`
	ItemCode            string         `json:"itemCode"`
	ItemName            string         `json:"itemName"`
	IsTool              bool           `json:"isTool"`
	WarehouseType       string         `json:"warehouseType"`
	MinStockLevel       int64          `json:"minStockLevel"`
	MaxStockLevel       int64          `json:"maxStockLevel"`
	TotalQuantityOnHand int64          `json:"totalQuantityOnHand"`
	Units               []UnitResponse `json:"units,omitempty"`
}

// ToItem converts the response to the domain item.
func (r *ItemResponse) ToItem() item.InventoryItem {
	it := item.InventoryItem{
		ID:                  r.ID,
		Code:                r.ItemCode,
		Name:                r.ItemName,
		IsTool:              r.IsTool,
		WarehouseType:       item.WarehouseType(r.WarehouseType),
		MinStockLevel:       r.MinStockLevel,
		MaxStockLevel:       r.MaxStockLevel,
		TotalQuantityOnHand: r.TotalQuantityOnHand,
	}
	for i := range r.Units {
		it.Units = append(it.Units, r.Units[i].ToDefinition())
	}
	return it
}

// FromItem creates the response for an item.
func FromItem(it *item.InventoryItem) ItemResponse {
	r := ItemResponse{
		ID:                  it.ID,
		ItemCode:            it.Code,
		ItemName:            it.Name,
		IsTool:              it.IsTool,
		WarehouseType:       string(it.WarehouseType),
		MinStockLevel:       it.MinStockLevel,
		MaxStockLevel:       it.MaxStockLevel,
		TotalQuantityOnHand: it.TotalQuantityOnHand,
	}
	for i := range it.Units {
		r.Units = append(r.Units, FromDefinition(&it.Units[i]))
	}
	return r
}

// UnitResponse is a unit definition (GET items/{id}/units/base).
type UnitResponse struct {
	ID             int64           `json:"id"`
	UnitName       string          `json:"unitName"`
	ConversionRate decimal.Decimal `json:"conversionRate"`
	IsBaseUnit     bool            `json:"isBaseUnit"`
	DisplayOrder   int             `json:"displayOrder"`
}

// ToDefinition converts the response to the domain unit.
func (r *UnitResponse) ToDefinition() unit.Definition {
	return unit.Definition{
		ID:             r.ID,
		Name:           r.UnitName,
		ConversionRate: r.ConversionRate,
		IsBase:         r.IsBaseUnit,
		DisplayOrder:   r.DisplayOrder,
	}
}

// FromDefinition creates the response for a unit.
func FromDefinition(d *unit.Definition) UnitResponse {
	return UnitResponse{
		ID:             d.ID,
		UnitName:       d.Name,
		ConversionRate: d.ConversionRate,
		IsBaseUnit:     d.IsBase,
		DisplayOrder:   d.DisplayOrder,
	}
}

// BatchResponse is one entry of GET items/{id}/batches.
type BatchResponse struct {
	ID             int64           `json:"id"`
	LotNumber      string          `json:"lotNumber"`
	ExpiryDate     *types.Date     `json:"expiryDate"`
	QuantityOnHand int64           `json:"quantityOnHand"`
	ImportPrice    decimal.Decimal `json:"importPrice"`
	ItemMasterID   int64           `json:"itemMasterId"`
}

// ToBatch converts the response to the domain batch.
func (r *BatchResponse) ToBatch() batch.Batch {
	b := batch.Batch{
		ID:             r.ID,
		LotNumber:      r.LotNumber,
		QuantityOnHand: r.QuantityOnHand,
		ImportPrice:    r.ImportPrice,
		ItemID:         r.ItemMasterID,
	}
	if r.ExpiryDate != nil && !r.ExpiryDate.IsZero() {
		e := *r.ExpiryDate
		b.ExpiryDate = &e
	}
	return b
}

// FromBatch creates the response for a batch.
func FromBatch(b *batch.Batch) BatchResponse {
	return BatchResponse{
		ID:             b.ID,
		LotNumber:      b.LotNumber,
		ExpiryDate:     b.ExpiryDate,
		QuantityOnHand: b.QuantityOnHand,
		ImportPrice:    b.ImportPrice,
		ItemMasterID:   b.ItemID,
	}
}
