package import_tx

import (
	"context"
	"fmt"

	"dentalstock/internal/core/apperror"
	"dentalstock/internal/core/id"
	"dentalstock/internal/core/security"
	"dentalstock/internal/core/types"
	"dentalstock/internal/domain/catalogs/item"
	"dentalstock/internal/domain/catalogs/unit"
	"dentalstock/internal/domain/documents"
	"dentalstock/pkg/logger"
)

// Submitter posts a complete import document (POST import-transactions).
type Submitter interface {
	CreateImport(ctx context.Context, payload Payload) error
}

// Config wires a Composer.
type Config struct {
	Resolver     *unit.Resolver
	Submitter    Submitter
	Capabilities security.Capabilities
	Logger       *logger.Logger

	// Date is the initial transaction date.
	Date types.Date
}

// Composer builds one import document. The document always keeps at least
// one line. Picking an item on a line resolves the item's base unit; lookups
// for different lines run independently and each result lands on the line
// that asked for it.
type Composer struct {
	documents.Session

	doc       *Document
	resolver  *unit.Resolver
	submitter Submitter
	caps      security.Capabilities
}

// NewComposer opens an import composer with one empty line.
func NewComposer(cfg Config) (*Composer, error) {
	if err := cfg.Capabilities.RequireImport(); err != nil {
		return nil, err
	}
	if cfg.Resolver == nil || cfg.Submitter == nil {
		return nil, fmt.Errorf("import composer: resolver and submitter are required")
	}

	c := &Composer{
		Session:   documents.NewSession(documents.KindImport, cfg.Logger),
		doc:       NewDocument(cfg.Date),
		resolver:  cfg.Resolver,
		submitter: cfg.Submitter,
		caps:      cfg.Capabilities,
	}
	c.TouchLocked(len(c.doc.Lines))
	return c, nil
}

// AddLine appends an empty line seeded with quantity 1 and returns its index.
func (c *Composer) AddLine() (int, error) {
	if err := c.caps.RequireEditLines(); err != nil {
		return -1, err
	}

	c.Mu.Lock()
	defer c.Mu.Unlock()

	if err := c.CheckEditableLocked(); err != nil {
		return -1, err
	}
	c.doc.Lines = append(c.doc.Lines, NewLine())
	c.TouchLocked(len(c.doc.Lines))
	return len(c.doc.Lines) - 1, nil
}

// RemoveLine removes the line at index. The last remaining line cannot be
// removed.
func (c *Composer) RemoveLine(ctx context.Context, index int) error {
	if err := c.caps.RequireEditLines(); err != nil {
		return err
	}

	c.Mu.Lock()
	defer c.Mu.Unlock()

	if err := c.CheckEditableLocked(); err != nil {
		return err
	}
	if err := c.checkIndexLocked(index); err != nil {
		return err
	}
	if len(c.doc.Lines) == 1 {
		c.Log.WithContext(ctx).Warnw("refusing to remove the last line")
		return apperror.NewBusinessRule(apperror.CodeLastLine, "an import document must keep at least one line").
			WithDetail("lineNo", index+1)
	}
	c.doc.Lines = append(c.doc.Lines[:index], c.doc.Lines[index+1:]...)
	c.TouchLocked(len(c.doc.Lines))
	return nil
}

// SetItem picks the item of a line and resolves its base unit. A cached unit
// is applied immediately. Otherwise the lookup runs without holding the
// composer, so other lines stay editable; when it returns, the result is
// applied only if the line still exists and still references the same item.
// A lookup failure leaves the line editable with an unresolved unit and is
// returned to the caller.
func (c *Composer) SetItem(ctx context.Context, index int, it item.InventoryItem) error {
	if err := c.caps.RequireEditLines(); err != nil {
		return err
	}

	c.Mu.Lock()
	if err := c.CheckEditableLocked(); err != nil {
		c.Mu.Unlock()
		return err
	}
	if err := c.checkIndexLocked(index); err != nil {
		c.Mu.Unlock()
		return err
	}
	line := &c.doc.Lines[index]
	line.ItemID = it.ID
	line.ItemCode = it.Code
	line.ItemName = it.Name
	line.IsTool = it.IsTool
	line.ResolvedUnitID = 0
	line.UnitError = nil
	key := line.Key

	if it.ID <= 0 {
		c.Mu.Unlock()
		return nil
	}
	if def, ok := c.resolver.Cached(it.ID); ok {
		line.ResolvedUnitID = def.ID
		c.Mu.Unlock()
		return nil
	}
	c.Mu.Unlock()

	return c.resolveLine(ctx, key, it.ID)
}

// RetryUnit repeats the base unit lookup of a line whose resolution failed.
func (c *Composer) RetryUnit(ctx context.Context, index int) error {
	if err := c.caps.RequireEditLines(); err != nil {
		return err
	}

	c.Mu.Lock()
	if err := c.CheckEditableLocked(); err != nil {
		c.Mu.Unlock()
		return err
	}
	if err := c.checkIndexLocked(index); err != nil {
		c.Mu.Unlock()
		return err
	}
	line := c.doc.Lines[index]
	c.Mu.Unlock()

	if line.ItemID <= 0 || line.ResolvedUnitID > 0 {
		return nil
	}
	return c.resolveLine(ctx, line.Key, line.ItemID)
}

func (c *Composer) resolveLine(ctx context.Context, key id.ID, itemID int64) error {
	def, err := c.resolver.Resolve(ctx, itemID)

	c.Mu.Lock()
	defer c.Mu.Unlock()

	idx := c.doc.IndexOf(key)
	if idx < 0 || c.doc.Lines[idx].ItemID != itemID {
		c.Log.WithContext(ctx).Debugw("discarding unit for a line that changed", "item_id", itemID)
		return nil
	}
	line := &c.doc.Lines[idx]
	if err != nil {
		line.UnitError = err
		return err
	}
	line.ResolvedUnitID = def.ID
	line.UnitError = nil
	return nil
}

// SetLotNumber sets the lot number of a line.
func (c *Composer) SetLotNumber(index int, lot string) error {
	return c.edit(index, func(l *Line) error {
		l.LotNumber = documents.NormalizeText(lot)
		return nil
	})
}

// SetExpiryDate sets the expiry date of a line.
func (c *Composer) SetExpiryDate(index int, date types.Date) error {
	return c.edit(index, func(l *Line) error {
		if date.IsZero() {
			l.ExpiryDate = nil
			return nil
		}
		d := date
		l.ExpiryDate = &d
		return nil
	})
}

// ClearExpiryDate removes the expiry date of a line.
func (c *Composer) ClearExpiryDate(index int) error {
	return c.edit(index, func(l *Line) error {
		l.ExpiryDate = nil
		return nil
	})
}

// SetQuantity sets the quantity of a line in base units.
func (c *Composer) SetQuantity(index int, qty int64) error {
	return c.edit(index, func(l *Line) error {
		l.Quantity = qty
		return nil
	})
}

// SetQuantityInUnit sets the quantity of a line entered in another unit of
// the item, converted to base units.
func (c *Composer) SetQuantityInUnit(index int, qty int64, in unit.Definition) error {
	base, err := unit.ToBase(qty, in)
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok {
			appErr.WithDetail("lineNo", index+1)
		}
		return err
	}
	return c.SetQuantity(index, base)
}

// SetPurchasePrice sets the unit purchase price of a line.
func (c *Composer) SetPurchasePrice(index int, price types.Money) error {
	return c.edit(index, func(l *Line) error {
		l.PurchasePrice = price
		return nil
	})
}

// SetBinLocation sets the storage location of a line.
func (c *Composer) SetBinLocation(index int, bin string) error {
	return c.edit(index, func(l *Line) error {
		l.BinLocation = documents.NormalizeText(bin)
		return nil
	})
}

// SetLineNotes sets the notes of a line.
func (c *Composer) SetLineNotes(index int, notes string) error {
	return c.edit(index, func(l *Line) error {
		l.Notes = documents.NormalizeText(notes)
		return nil
	})
}

// SetHeader sets the document header.
func (c *Composer) SetHeader(date types.Date, supplierID int64, invoiceNumber, notes string) error {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	if err := c.CheckEditableLocked(); err != nil {
		return err
	}
	c.doc.TransactionDate = date
	c.doc.SupplierID = supplierID
	c.doc.InvoiceNumber = documents.NormalizeText(invoiceNumber)
	c.doc.Notes = documents.NormalizeText(notes)
	return nil
}

func (c *Composer) edit(index int, fn func(l *Line) error) error {
	if err := c.caps.RequireEditLines(); err != nil {
		return err
	}

	c.Mu.Lock()
	defer c.Mu.Unlock()

	if err := c.CheckEditableLocked(); err != nil {
		return err
	}
	if err := c.checkIndexLocked(index); err != nil {
		return err
	}
	if err := fn(&c.doc.Lines[index]); err != nil {
		return err
	}
	c.TouchLocked(len(c.doc.Lines))
	return nil
}

func (c *Composer) checkIndexLocked(index int) error {
	if index < 0 || index >= len(c.doc.Lines) {
		return apperror.NewNotFound("line", index+1)
	}
	return nil
}

// Lines returns a copy of the lines.
func (c *Composer) Lines() []Line {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return append([]Line(nil), c.doc.Lines...)
}

// Document returns a copy of the document.
func (c *Composer) Document() Document {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	cp := *c.doc
	cp.Lines = append([]Line(nil), c.doc.Lines...)
	return cp
}

// Validate runs whole-document validation without submitting.
func (c *Composer) Validate(ctx context.Context) error {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.doc.Validate(ctx)
}

// Submit validates the document and posts it once. On success the document
// is cleared and the composer closes. On failure every line is kept as is
// and the error is returned (and available from LastError).
func (c *Composer) Submit(ctx context.Context) error {
	if err := c.caps.RequireImport(); err != nil {
		return err
	}

	prepare := func() (func(context.Context) error, error) {
		if err := c.doc.Validate(ctx); err != nil {
			return nil, err
		}
		payload := c.doc.ToPayload()
		if err := payload.Validate(); err != nil {
			return nil, apperror.NewValidation("import payload is malformed").WithCause(err)
		}
		c.Log.WithContext(ctx).Infow("submitting import document",
			"lines", len(payload.Items),
			"total_quantity", c.doc.TotalQuantity(),
			"total_amount", c.doc.TotalAmount().String())
		return func(ctx context.Context) error {
			return c.submitter.CreateImport(ctx, payload)
		}, nil
	}

	return c.Session.Submit(ctx, prepare, c.clearLocked)
}

// Close discards the document.
func (c *Composer) Close(ctx context.Context) error {
	return c.Discard(ctx, c.clearLocked)
}

func (c *Composer) clearLocked() {
	c.doc.Lines = nil
}
