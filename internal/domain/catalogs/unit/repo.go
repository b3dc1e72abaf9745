package unit

import (
	"context"
)

// Source looks up the base unit of an inventory item on the remote
// inventory service (GET items/{id}/units/base).
type Source interface {
	GetBaseUnit(ctx context.Context, itemID int64) (*Definition, error)
}
