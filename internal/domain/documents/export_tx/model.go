// Package export_tx provides the export document (Phiếu xuất kho) and its
// composer. Export lines reference a batch chosen through the batch
// selector; the batch's lot number and expiry are inherited, never typed.
package export_tx

import (
	"context"

	"dentalstock/internal/core/apperror"
	"dentalstock/internal/core/id"
	"dentalstock/internal/core/types"
	"dentalstock/internal/domain/batch"
	"dentalstock/internal/domain/catalogs/item"
)

// Line is one row of an export document.
type Line struct {
	Key id.ID

	ItemID        int64
	ItemCode      string
	ItemName      string
	MinStockLevel int64

	BatchID    int64
	LotNumber  string
	ExpiryDate *types.Date

	// OnHandSnapshot is the batch's stock when the line was confirmed. The
	// service re-checks stock on submit.
	OnHandSnapshot int64
	Quantity       int64

	item item.InventoryItem
}

// LineFromSelection builds a line from a confirmed batch selection.
func LineFromSelection(sel batch.Selection) Line {
	l := Line{
		Key:            id.New(),
		ItemID:         sel.Item.ID,
		ItemCode:       sel.Item.Code,
		ItemName:       sel.Item.Name,
		MinStockLevel:  sel.Item.MinStockLevel,
		BatchID:        sel.Batch.ID,
		LotNumber:      sel.Batch.LotNumber,
		OnHandSnapshot: sel.Batch.QuantityOnHand,
		Quantity:       sel.Quantity,
		item:           sel.Item,
	}
	if sel.Batch.ExpiryDate != nil {
		e := *sel.Batch.ExpiryDate
		l.ExpiryDate = &e
	}
	return l
}

// Item returns the item snapshot the line was built from.
func (l *Line) Item() item.InventoryItem {
	return l.item
}

// Validate runs the per-line checks in order and returns the first failure.
func (l *Line) Validate(lineNo int) error {
	if l.BatchID <= 0 {
		return apperror.NewLineValidation(lineNo, "batchId", "batch is required")
	}
	if l.Quantity <= 0 {
		return apperror.NewLineValidation(lineNo, "quantity", "quantity must be positive")
	}
	if l.Quantity > l.OnHandSnapshot {
		return apperror.NewLineValidation(lineNo, "quantity", "quantity exceeds the batch's stock").
			WithDetail("available", l.OnHandSnapshot).
			WithDetail("lotNumber", l.LotNumber)
	}
	return nil
}

// Document is an export document: header plus ordered lines.
type Document struct {
	TransactionDate types.Date
	Notes           string

	Lines []Line
}

// NewDocument creates an empty document dated date.
func NewDocument(date types.Date) *Document {
	return &Document{TransactionDate: date}
}

// Validate checks the header and then every line, stopping at the first
// violation.
func (d *Document) Validate(ctx context.Context) error {
	if d.TransactionDate.IsZero() {
		return apperror.NewValidation("transaction date is required").
			WithDetail("field", "transactionDate")
	}
	if len(d.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "items")
	}
	for i := range d.Lines {
		if err := d.Lines[i].Validate(i + 1); err != nil {
			return err
		}
	}
	return nil
}

// IndexOf returns the position of the line with key, or -1.
func (d *Document) IndexOf(key id.ID) int {
	for i := range d.Lines {
		if d.Lines[i].Key == key {
			return i
		}
	}
	return -1
}

// TotalQuantity sums line quantities.
func (d *Document) TotalQuantity() int64 {
	var total int64
	for _, l := range d.Lines {
		total += l.Quantity
	}
	return total
}
