package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailability(t *testing.T) {
	tests := []struct {
		name   string
		onHand int64
		min    int64
		want   Availability
	}{
		{"empty", 0, 5, Disabled},
		{"negative", -2, 5, Disabled},
		{"at minimum", 5, 5, LowStock},
		{"below minimum", 1, 5, LowStock},
		{"above minimum", 6, 5, Available},
		{"no minimum", 1, 0, Available},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := InventoryItem{TotalQuantityOnHand: tt.onHand, MinStockLevel: tt.min}
			assert.Equal(t, tt.want, it.Availability())
			assert.Equal(t, tt.want != Disabled, it.Selectable())
		})
	}
}

func TestParseWarehouseType(t *testing.T) {
	wt, err := ParseWarehouseType(" cold ")
	require.NoError(t, err)
	assert.Equal(t, WarehouseCold, wt)

	_, err = ParseWarehouseType("FROZEN")
	assert.Error(t, err)
}

func TestFindByCode(t *testing.T) {
	items := []InventoryItem{{ID: 1, Code: "VT001"}, {ID: 2, Code: "VT002"}}

	assert.Equal(t, int64(2), FindByCode(items, "vt002").ID)
	assert.Nil(t, FindByCode(items, "VT009"))
	assert.Equal(t, "VT001", FindByID(items, 1).Code)
}
