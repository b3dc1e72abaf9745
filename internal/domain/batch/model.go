// Package batch provides expiry-dated stock lots and the batch selector used
// to pick the lot an export line is drawn from.
//
// Batches are owned by the remote inventory service, which also decides
// their First-Expired-First-Out order. This package never re-sorts them.
package batch

import (
	"time"

	"dentalstock/internal/core/types"
)

// Batch is one received lot of an item.
type Batch struct {
	ID        int64  `json:"id"`
	LotNumber string `json:"lotNumber"`

	// ExpiryDate is nil only for tool items.
	ExpiryDate *types.Date `json:"expiryDate,omitempty"`

	QuantityOnHand int64       `json:"quantityOnHand"`
	ImportPrice    types.Money `json:"importPrice"`

	ItemID int64 `json:"itemMasterId"`
}

// HasStock reports whether anything is left in the batch.
func (b *Batch) HasStock() bool {
	return b.QuantityOnHand > 0
}

// DaysUntilExpiry returns whole days from asOf to the expiry date. The second
// result is false for batches without an expiry date.
func (b *Batch) DaysUntilExpiry(asOf time.Time) (int, bool) {
	if b.ExpiryDate == nil || b.ExpiryDate.IsZero() {
		return 0, false
	}
	today := types.NewDate(asOf)
	return int(b.ExpiryDate.Sub(today.Time).Hours() / 24), true
}

// IsExpired reports whether the batch expired before asOf.
func (b *Batch) IsExpired(asOf time.Time) bool {
	days, ok := b.DaysUntilExpiry(asOf)
	return ok && days < 0
}
