package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeList(t *testing.T) {
	bare := []byte(`[{"id":1,"lotNumber":"L1","expiryDate":"2025-01-01","quantityOnHand":5,"importPrice":"12000","itemMasterId":7}]`)
	list, err := DecodeList[BatchResponse](bare)
	require.NoError(t, err)
	require.Len(t, list, 1)

	b := list[0].ToBatch()
	assert.Equal(t, "L1", b.LotNumber)
	assert.Equal(t, "2025-01-01", b.ExpiryDate.String())
	assert.Equal(t, int64(7), b.ItemID)
	assert.Equal(t, "12000", b.ImportPrice.String())

	enveloped := []byte(` {"items":[{"id":2,"lotNumber":"T","expiryDate":null,"quantityOnHand":1}],"totalItems":1}`)
	list, err = DecodeList[BatchResponse](enveloped)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].ToBatch().ExpiryDate)

	_, err = DecodeList[BatchResponse]([]byte(`"nope"`))
	assert.Error(t, err)
}

func TestItemResponse_ToItem(t *testing.T) {
	r := ItemResponse{
		ID: 1, ItemCode: "VT001", ItemName: "Thuốc tê", WarehouseType: "COLD",
		MinStockLevel: 10, TotalQuantityOnHand: 8,
		Units: []UnitResponse{{ID: 101, UnitName: "ống", IsBaseUnit: true}},
	}
	it := r.ToItem()
	assert.Equal(t, "VT001", it.Code)
	require.Len(t, it.Units, 1)
	assert.True(t, it.Units[0].IsBase)

	back := FromItem(&it)
	assert.Equal(t, r.ItemCode, back.ItemCode)
	assert.Equal(t, r.WarehouseType, back.WarehouseType)
}
