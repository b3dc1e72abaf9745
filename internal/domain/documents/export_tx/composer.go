package export_tx

import (
	"context"
	"fmt"

	"dentalstock/internal/core/apperror"
	"dentalstock/internal/core/id"
	"dentalstock/internal/core/security"
	"dentalstock/internal/core/types"
	"dentalstock/internal/domain/batch"
	"dentalstock/internal/domain/documents"
	"dentalstock/pkg/logger"
)

// Submitter posts a complete export document (POST export-transactions).
type Submitter interface {
	CreateExport(ctx context.Context, payload Payload) error
}

// Config wires a Composer.
type Config struct {
	Selector     *batch.Selector
	Submitter    Submitter
	Capabilities security.Capabilities
	Logger       *logger.Logger
	Date         types.Date
}

// Composer builds one export document. Lines are added and edited through
// the batch selector: OpenAdd or OpenEdit starts a selection, the caller
// drives the selector's steps, and ConfirmSelection writes the result back.
type Composer struct {
	documents.Session

	doc       *Document
	selector  *batch.Selector
	submitter Submitter
	caps      security.Capabilities

	// selecting is true between Open* and Confirm/CancelSelection.
	selecting bool
	// target is the key of the line being edited; nil when appending.
	target id.ID
}

// NewComposer opens an empty export composer.
func NewComposer(cfg Config) (*Composer, error) {
	if err := cfg.Capabilities.RequireExport(); err != nil {
		return nil, err
	}
	if cfg.Selector == nil || cfg.Submitter == nil {
		return nil, fmt.Errorf("export composer: selector and submitter are required")
	}
	return &Composer{
		Session:   documents.NewSession(documents.KindExport, cfg.Logger),
		doc:       NewDocument(cfg.Date),
		selector:  cfg.Selector,
		submitter: cfg.Submitter,
		caps:      cfg.Capabilities,
	}, nil
}

// Selector returns the batch selector driven between Open* and
// ConfirmSelection.
func (c *Composer) Selector() *batch.Selector {
	return c.selector
}

// OpenAdd starts a selection that appends a new line.
func (c *Composer) OpenAdd() error {
	if err := c.caps.RequireEditLines(); err != nil {
		return err
	}

	c.Mu.Lock()
	defer c.Mu.Unlock()

	if err := c.CheckEditableLocked(); err != nil {
		return err
	}
	c.selector.Reset()
	c.selecting = true
	c.target = id.Nil()
	return nil
}

// OpenEdit starts a selection that replaces the line at index. The selector
// is pre-filled with the line's item, batch and quantity; if the batch is no
// longer listed the service's first batch is pre-selected instead.
func (c *Composer) OpenEdit(ctx context.Context, index int) error {
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
	c.selector.Reset()
	c.selecting = true
	c.target = line.Key
	c.Mu.Unlock()

	if err := c.selector.SelectInventoryItem(ctx, line.Item()); err != nil {
		return err
	}
	if err := c.selector.SelectBatch(line.BatchID); err != nil {
		c.Log.WithContext(ctx).Infow("batch of edited line is no longer listed",
			"batch_id", line.BatchID,
			"lot", line.LotNumber)
		return nil
	}
	// An out-of-range quantity is kept for the operator to correct.
	_ = c.selector.SetQuantity(line.Quantity)
	return nil
}

// ConfirmSelection writes the selector's result to the document: it replaces
// the edited line in place, or appends when the selection was opened with
// OpenAdd (or the edited line has since been removed). It returns the index
// of the written line. An incomplete or invalid selection leaves both the
// selector and the document unchanged.
func (c *Composer) ConfirmSelection(ctx context.Context) (int, error) {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	if err := c.CheckEditableLocked(); err != nil {
		return -1, err
	}
	if !c.selecting {
		return -1, apperror.NewValidation("no batch selection is open")
	}
	sel, err := c.selector.Confirm()
	if err != nil {
		return -1, err
	}

	line := LineFromSelection(sel)
	idx := -1
	if !id.IsNil(c.target) {
		idx = c.doc.IndexOf(c.target)
	}
	if idx >= 0 {
		line.Key = c.target
		c.doc.Lines[idx] = line
	} else {
		c.doc.Lines = append(c.doc.Lines, line)
		idx = len(c.doc.Lines) - 1
	}

	if w := c.selector.Warning(); w != nil {
		c.Log.WithContext(ctx).Infow("export takes batch below minimum stock", "warning", w.String())
	}
	c.closeSelectionLocked()
	c.TouchLocked(len(c.doc.Lines))
	return idx, nil
}

// CancelSelection closes the selector without changing the document.
func (c *Composer) CancelSelection() {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.closeSelectionLocked()
}

func (c *Composer) closeSelectionLocked() {
	c.selector.Reset()
	c.selecting = false
	c.target = id.Nil()
}

// Selecting reports whether a batch selection is open.
func (c *Composer) Selecting() bool {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.selecting
}

// RemoveLine removes the line at index. Export documents may become empty.
func (c *Composer) RemoveLine(index int) error {
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
	c.doc.Lines = append(c.doc.Lines[:index], c.doc.Lines[index+1:]...)
	c.TouchLocked(len(c.doc.Lines))
	return nil
}

// SetQuantity changes the quantity of a line in place, e.g. after the
// service rejected a submission for insufficient stock.
func (c *Composer) SetQuantity(index int, qty int64) error {
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
	c.doc.Lines[index].Quantity = qty
	return nil
}

// SetHeader sets the document header.
func (c *Composer) SetHeader(date types.Date, notes string) error {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	if err := c.CheckEditableLocked(); err != nil {
		return err
	}
	c.doc.TransactionDate = date
	c.doc.Notes = documents.NormalizeText(notes)
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

// Submit validates the document and posts it once. The service re-checks
// stock; a rejection keeps every line so the operator can adjust and
// resubmit.
func (c *Composer) Submit(ctx context.Context) error {
	if err := c.caps.RequireExport(); err != nil {
		return err
	}

	prepare := func() (func(context.Context) error, error) {
		if c.selecting {
			return nil, apperror.NewValidation("confirm or cancel the open batch selection first")
		}
		if err := c.doc.Validate(ctx); err != nil {
			return nil, err
		}
		payload := c.doc.ToPayload()
		if err := payload.Validate(); err != nil {
			return nil, apperror.NewValidation("export payload is malformed").WithCause(err)
		}
		c.Log.WithContext(ctx).Infow("submitting export document",
			"lines", len(payload.Items),
			"total_quantity", c.doc.TotalQuantity())
		return func(ctx context.Context) error {
			return c.submitter.CreateExport(ctx, payload)
		}, nil
	}

	return c.Session.Submit(ctx, prepare, c.clearLocked)
}

// Close discards the document and any open selection.
func (c *Composer) Close(ctx context.Context) error {
	return c.Discard(ctx, c.clearLocked)
}

func (c *Composer) clearLocked() {
	c.doc.Lines = nil
	c.closeSelectionLocked()
}
