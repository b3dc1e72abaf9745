// Package import_tx provides the import document (Phiếu nhập kho) and its
// composer.
package import_tx

import (
	"context"

	"github.com/shopspring/decimal"

	"dentalstock/internal/core/apperror"
	"dentalstock/internal/core/id"
	"dentalstock/internal/core/types"
)

// Line is one row of an import document being composed.
type Line struct {
	// Key identifies the row for the lifetime of the composer, independent of
	// its position.
	Key id.ID

	ItemID   int64
	ItemCode string
	ItemName string

	// IsTool is snapshotted from the item; tool lines need no expiry date.
	IsTool bool

	LotNumber  string
	ExpiryDate *types.Date
	Quantity   int64

	// ResolvedUnitID is the item's base unit, filled by the unit resolver.
	ResolvedUnitID int64
	// UnitError is the last resolution failure for this row, if any.
	UnitError error

	PurchasePrice types.Money
	BinLocation   string
	Notes         string
}

// NewLine returns an empty row seeded with quantity 1.
func NewLine() Line {
	return Line{
		Key:           id.New(),
		Quantity:      1,
		PurchasePrice: types.Zero(),
	}
}

// Validate runs the per-line checks in order and returns the first failure.
func (l *Line) Validate(lineNo int) error {
	if l.ItemID <= 0 {
		return apperror.NewLineValidation(lineNo, "itemMasterId", "item is required")
	}
	if l.LotNumber == "" {
		return apperror.NewLineValidation(lineNo, "lotNumber", "lot number is required")
	}
	if l.Quantity <= 0 {
		return apperror.NewLineValidation(lineNo, "quantity", "quantity must be positive")
	}
	if l.ResolvedUnitID <= 0 {
		err := apperror.NewLineValidation(lineNo, "unitId", "base unit is not resolved")
		if l.UnitError != nil {
			err.WithCause(l.UnitError)
		}
		return err
	}
	if !l.PurchasePrice.IsPositive() {
		return apperror.NewLineValidation(lineNo, "purchasePrice", "purchase price must be positive")
	}
	if !l.IsTool && (l.ExpiryDate == nil || l.ExpiryDate.IsZero()) {
		return apperror.NewLineValidation(lineNo, "expiryDate", "expiry date is required")
	}
	return nil
}

// Document is an import document: header plus ordered lines.
type Document struct {
	TransactionDate types.Date
	SupplierID      int64
	InvoiceNumber   string
	Notes           string

	Lines []Line
}

// NewDocument creates a document dated date with one empty line.
func NewDocument(date types.Date) *Document {
	return &Document{
		TransactionDate: date,
		Lines:           []Line{NewLine()},
	}
}

// Validate checks the header and then every line, stopping at the first
// violation. Line errors carry the 1-based row number.
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

// TotalQuantity sums line quantities (base units).
func (d *Document) TotalQuantity() int64 {
	var total int64
	for _, l := range d.Lines {
		total += l.Quantity
	}
	return total
}

// TotalAmount sums quantity × purchase price over all lines.
func (d *Document) TotalAmount() types.Money {
	total := types.Zero()
	for _, l := range d.Lines {
		total = total.Add(l.PurchasePrice.Mul(decimal.NewFromInt(l.Quantity)))
	}
	return total
}
