package batch

import (
	"context"
)

// Source lists the open batches of an item (GET items/{id}/batches).
// Implementations must return them in the service's FEFO order.
type Source interface {
	ListBatches(ctx context.Context, itemID int64) ([]Batch, error)
}
