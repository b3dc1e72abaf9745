package batch

import (
	"context"
	"fmt"
	"sync"

	"dentalstock/internal/core/apperror"
	"dentalstock/internal/domain/catalogs/item"
	"dentalstock/pkg/logger"
)

// Selector walks the operator through item → batch → quantity and returns
// the chosen batch with a quantity. It never writes to the inventory
// service; stock is decremented server-side when the export document is
// submitted.
//
// Selector is safe for concurrent use. A batch fetch started by SelectItem
// only commits if the same item is still selected when it returns.
type Selector struct {
	items         item.Source
	batches       Source
	warehouseType item.WarehouseType
	log           *logger.Logger

	mu         sync.Mutex
	generation uint64
	listed     []item.InventoryItem
	current    *item.InventoryItem
	loading    bool
	list       []Batch
	chosen     int // index into list, -1 when none
	manual     bool
	quantity   int64
}

// Option is one row of the item list.
type Option struct {
	Item         item.InventoryItem
	Availability item.Availability
}

// Selection is the result of Confirm.
type Selection struct {
	Item     item.InventoryItem
	Batch    Batch
	Quantity int64
}

// Warning is the non-blocking low-stock advisory shown while typing a
// quantity. It never prevents Confirm.
type Warning struct {
	ItemCode      string
	Remaining     int64
	MinStockLevel int64
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %d left after export, below minimum stock level %d",
		w.ItemCode, w.Remaining, w.MinStockLevel)
}

// NewSelector creates a selector listing items of warehouseType.
func NewSelector(items item.Source, batches Source, warehouseType item.WarehouseType, log *logger.Logger) *Selector {
	if log == nil {
		log = logger.Default()
	}
	return &Selector{
		items:         items,
		batches:       batches,
		warehouseType: warehouseType,
		log:           log.WithComponent("batch-selector"),
		chosen:        -1,
	}
}

// WarehouseType returns the warehouse the selector lists items from.
func (s *Selector) WarehouseType() item.WarehouseType {
	return s.warehouseType
}

// Items lists the selectable items (step 1). Out-of-stock items are included
// but flagged Disabled; items at or below their minimum are flagged LowStock.
func (s *Selector) Items(ctx context.Context) ([]Option, error) {
	list, err := s.items.ListItems(ctx, s.warehouseType)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	s.mu.Lock()
	s.listed = append([]item.InventoryItem(nil), list...)
	s.mu.Unlock()

	opts := make([]Option, 0, len(list))
	for _, it := range list {
		opts = append(opts, Option{Item: it, Availability: it.Availability()})
	}
	return opts, nil
}

// SelectItem chooses an item from the last Items listing (step 2) and loads
// its batches. Batch and quantity selections are cleared at once, before the
// fetch starts. When the fetch returns, the first batch is pre-selected unless
// the operator already picked one.
func (s *Selector) SelectItem(ctx context.Context, itemID int64) error {
	s.mu.Lock()
	found := item.FindByID(s.listed, itemID)
	if found == nil {
		s.mu.Unlock()
		return apperror.NewNotFound("item", itemID)
	}
	it := *found
	s.mu.Unlock()

	return s.selectItem(ctx, it)
}

// SelectInventoryItem is SelectItem for an item obtained elsewhere, e.g.
// when reopening the selector for an existing export line.
func (s *Selector) SelectInventoryItem(ctx context.Context, it item.InventoryItem) error {
	return s.selectItem(ctx, it)
}

func (s *Selector) selectItem(ctx context.Context, it item.InventoryItem) error {
	if !it.Selectable() {
		return apperror.NewBusinessRule(apperror.CodeItemUnavailable, "item is out of stock").
			WithDetail("itemId", it.ID).
			WithDetail("itemCode", it.Code)
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.current = &it
	s.list = nil
	s.chosen = -1
	s.manual = false
	s.quantity = 0
	s.loading = true
	s.mu.Unlock()

	batches, err := s.batches.ListBatches(ctx, it.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.current == nil || s.current.ID != it.ID {
		s.log.WithContext(ctx).Debugw("discarding stale batch list", "item_id", it.ID)
		return nil
	}
	s.loading = false

	if err != nil {
		s.log.WithContext(ctx).Warnw("batch lookup failed", "item_id", it.ID, "error", err)
		return apperror.NewResolution("batches", it.ID, err)
	}

	s.list = append([]Batch(nil), batches...)
	if !s.manual && s.chosen < 0 && len(s.list) > 0 {
		s.chosen = 0
	}

	s.log.WithContext(ctx).Debugw("batches loaded",
		"item_id", it.ID,
		"count", len(s.list),
		"default_lot", s.lotAt(s.chosen))
	return nil
}

func (s *Selector) lotAt(i int) string {
	if i < 0 || i >= len(s.list) {
		return ""
	}
	return s.list[i].LotNumber
}

// SelectBatch is the operator's manual batch choice.
func (s *Selector) SelectBatch(batchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return apperror.NewValidation("select an item first").
			WithDetail("field", "itemId")
	}
	for i := range s.list {
		if s.list[i].ID == batchID {
			s.chosen = i
			s.manual = true
			return nil
		}
	}
	return apperror.NewNotFound("batch", batchID)
}

// SetQuantity records the requested quantity (step 3). The value is kept even
// when invalid so the form shows what was typed; Confirm re-checks it.
func (s *Selector) SetQuantity(qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chosen < 0 {
		return apperror.NewValidation("select a batch before entering a quantity").
			WithDetail("field", "batchId")
	}
	s.quantity = qty
	return checkQuantity(&s.list[s.chosen], qty)
}

func checkQuantity(b *Batch, qty int64) error {
	if qty < 1 {
		return apperror.NewValidation("quantity must be at least 1").
			WithDetail("field", "quantity").
			WithDetail("value", qty)
	}
	if qty > b.QuantityOnHand {
		return apperror.NewValidation("quantity exceeds the batch's stock").
			WithDetail("field", "quantity").
			WithDetail("value", qty).
			WithDetail("available", b.QuantityOnHand).
			WithDetail("lotNumber", b.LotNumber)
	}
	return nil
}

// Warning returns the low-stock advisory for the current batch and
// quantity, or nil.
func (s *Selector) Warning() *Warning {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.chosen < 0 || s.quantity < 1 {
		return nil
	}
	remaining := s.list[s.chosen].QuantityOnHand - s.quantity
	if remaining >= s.current.MinStockLevel {
		return nil
	}
	return &Warning{
		ItemCode:      s.current.Code,
		Remaining:     remaining,
		MinStockLevel: s.current.MinStockLevel,
	}
}

// Confirm returns the chosen batch and quantity if a batch is chosen and
// 0 < quantity ≤ on hand. Otherwise it returns a validation error and leaves
// the selector unchanged.
func (s *Selector) Confirm() (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Selection{}, apperror.NewValidation("select an item").
			WithDetail("field", "itemId")
	}
	if s.chosen < 0 {
		return Selection{}, apperror.NewValidation("select a batch").
			WithDetail("field", "batchId")
	}
	b := s.list[s.chosen]
	if err := checkQuantity(&b, s.quantity); err != nil {
		return Selection{}, err
	}
	return Selection{Item: *s.current, Batch: b, Quantity: s.quantity}, nil
}

// Reset clears all three steps. Any fetch still in flight is discarded when
// it returns.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.current = nil
	s.list = nil
	s.chosen = -1
	s.manual = false
	s.quantity = 0
	s.loading = false
}

// Batches returns the loaded batches in service order.
func (s *Selector) Batches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Batch(nil), s.list...)
}

// SelectedItem returns the chosen item, or nil.
func (s *Selector) SelectedItem() *item.InventoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// SelectedBatch returns the chosen batch, or nil.
func (s *Selector) SelectedBatch() *Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chosen < 0 {
		return nil
	}
	cp := s.list[s.chosen]
	return &cp
}

// Quantity returns the last quantity entered.
func (s *Selector) Quantity() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quantity
}

// Loading reports whether a batch fetch for the current item is outstanding.
func (s *Selector) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}
