package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"dentalstock/internal/core/apperror"
	"dentalstock/internal/core/types"
	"dentalstock/internal/domain/batch"
	"dentalstock/internal/domain/catalogs/item"
	"dentalstock/internal/domain/catalogs/unit"
	"dentalstock/internal/domain/documents/export_tx"
	"dentalstock/internal/domain/documents/import_tx"
)

func (a *app) warehouseFlag(fs *flag.FlagSet) *string {
	return fs.String("warehouse", a.cfg.Composer.WarehouseType, "warehouse type (COLD or NORMAL)")
}

func (a *app) runItems(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("items", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	wtFlag := a.warehouseFlag(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	wt, err := item.ParseWarehouseType(*wtFlag)
	if err != nil {
		return err
	}

	items, err := a.items.ListItems(ctx, wt)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tON HAND\tMIN\tSTATUS")
	for i := range items {
		it := &items[i]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			it.Code, it.Name, it.TotalQuantityOnHand, it.MinStockLevel, it.Availability())
	}
	return tw.Flush()
}

func (a *app) runImport(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	var draft importDraft
	if err := readDraft(args[0], &draft); err != nil {
		return err
	}
	if len(draft.Lines) == 0 {
		return apperror.NewValidation("draft has no lines").WithDetail("field", "lines")
	}

	composer, err := import_tx.NewComposer(import_tx.Config{
		Resolver:     a.resolver,
		Submitter:    a.client,
		Capabilities: a.caps,
		Logger:       a.log,
		Date:         dateOrToday(draft.TransactionDate),
	})
	if err != nil {
		return err
	}
	composer.OnClosed(a.items.ClosedHook())

	if err := composer.SetHeader(dateOrToday(draft.TransactionDate), draft.SupplierID, draft.InvoiceNumber, draft.Notes); err != nil {
		return err
	}

	// Import lines may name items of either warehouse.
	var catalog []item.InventoryItem
	for _, wt := range []item.WarehouseType{item.WarehouseCold, item.WarehouseNormal} {
		list, err := a.items.ListItems(ctx, wt)
		if err != nil {
			return err
		}
		catalog = append(catalog, list...)
	}

	for i, l := range draft.Lines {
		idx := 0
		if i > 0 {
			if idx, err = composer.AddLine(); err != nil {
				return err
			}
		}
		if err := a.fillImportLine(ctx, composer, idx, catalog, l); err != nil {
			return err
		}
	}

	if err := composer.Submit(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "import document submitted: %d line(s)\n", len(draft.Lines))
	return nil
}

func (a *app) fillImportLine(ctx context.Context, c *import_tx.Composer, idx int, catalog []item.InventoryItem, l importDraftLine) error {
	it := item.FindByCode(catalog, l.ItemCode)
	if it == nil {
		return apperror.NewLineValidation(idx+1, "itemMasterId", "unknown item code").
			WithDetail("itemCode", l.ItemCode)
	}
	if err := c.SetItem(ctx, idx, *it); err != nil {
		return err
	}
	if err := c.SetLotNumber(idx, l.LotNumber); err != nil {
		return err
	}
	if l.ExpiryDate != nil {
		if err := c.SetExpiryDate(idx, *l.ExpiryDate); err != nil {
			return err
		}
	}

	if l.Unit == "" {
		if err := c.SetQuantity(idx, l.Quantity); err != nil {
			return err
		}
	} else {
		if err := unit.ValidateSet(it.Units); err != nil {
			return apperror.NewLineValidation(idx+1, "unitId", "item units are inconsistent").
				WithCause(err)
		}
		var found bool
		for _, u := range it.Units {
			if strings.EqualFold(u.Name, l.Unit) {
				if err := c.SetQuantityInUnit(idx, l.Quantity, u); err != nil {
					return err
				}
				found = true
				break
			}
		}
		if !found {
			return apperror.NewLineValidation(idx+1, "unitId", "item has no such unit").
				WithDetail("unit", l.Unit)
		}
	}

	if err := c.SetPurchasePrice(idx, l.PurchasePrice); err != nil {
		return err
	}
	if err := c.SetBinLocation(idx, l.BinLocation); err != nil {
		return err
	}
	return c.SetLineNotes(idx, l.Notes)
}

func (a *app) runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	wtFlag := a.warehouseFlag(fs)
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	wt, err := item.ParseWarehouseType(*wtFlag)
	if err != nil {
		return err
	}

	var draft exportDraft
	if err := readDraft(fs.Arg(0), &draft); err != nil {
		return err
	}

	composer, err := export_tx.NewComposer(export_tx.Config{
		Selector:     batch.NewSelector(a.items, a.client, wt, a.log),
		Submitter:    a.client,
		Capabilities: a.caps,
		Logger:       a.log,
		Date:         dateOrToday(draft.TransactionDate),
	})
	if err != nil {
		return err
	}
	composer.OnClosed(a.items.ClosedHook())

	if err := composer.SetHeader(dateOrToday(draft.TransactionDate), draft.Notes); err != nil {
		return err
	}
	for i, l := range draft.Lines {
		if err := a.addExportLine(ctx, composer, i+1, l); err != nil {
			composer.CancelSelection()
			return err
		}
	}

	if err := composer.Submit(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "export document submitted: %d line(s)\n", len(draft.Lines))
	return nil
}

func (a *app) addExportLine(ctx context.Context, c *export_tx.Composer, lineNo int, l exportDraftLine) error {
	if err := c.OpenAdd(); err != nil {
		return err
	}
	sel := c.Selector()

	opts, err := sel.Items(ctx)
	if err != nil {
		return err
	}
	var itemID int64
	for _, o := range opts {
		if strings.EqualFold(o.Item.Code, l.ItemCode) {
			itemID = o.Item.ID
			break
		}
	}
	if itemID == 0 {
		return apperror.NewLineValidation(lineNo, "itemId", "item is not stored in this warehouse").
			WithDetail("itemCode", l.ItemCode).
			WithDetail("warehouseType", string(sel.WarehouseType()))
	}
	if err := sel.SelectItem(ctx, itemID); err != nil {
		return err
	}

	if l.LotNumber != "" {
		if err := selectLot(sel, l.LotNumber); err != nil {
			return apperror.NewLineValidation(lineNo, "batchId", "no batch with this lot number").
				WithDetail("lotNumber", l.LotNumber).
				WithCause(err)
		}
	}
	if err := sel.SetQuantity(l.Quantity); err != nil {
		if appErr, ok := apperror.AsAppError(err); ok {
			appErr.WithDetail("lineNo", lineNo)
		}
		return err
	}
	if w := sel.Warning(); w != nil {
		fmt.Fprintf(a.out, "warning: %s\n", w)
	}
	_, err = c.ConfirmSelection(ctx)
	return err
}

func selectLot(sel *batch.Selector, lot string) error {
	for _, b := range sel.Batches() {
		if strings.EqualFold(b.LotNumber, lot) {
			return sel.SelectBatch(b.ID)
		}
	}
	return apperror.NewNotFound("batch", lot)
}

func dateOrToday(d types.Date) types.Date {
	if d.IsZero() {
		return types.NewDate(time.Now())
	}
	return d
}
