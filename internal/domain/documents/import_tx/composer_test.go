package import_tx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dentalstock/internal/core/apperror"
	"dentalstock/internal/core/security"
	"dentalstock/internal/core/types"
	"dentalstock/internal/domain/catalogs/item"
	"dentalstock/internal/domain/catalogs/unit"
	"dentalstock/internal/domain/documents"
	"dentalstock/pkg/logger"
)

type unitSource struct {
	mu    sync.Mutex
	units map[int64]*unit.Definition
	gates map[int64]chan struct{}
	calls map[int64]int
	err   error
}

func newUnitSource() *unitSource {
	return &unitSource{
		units: map[int64]*unit.Definition{
			1: {ID: 101, Name: "ống", ConversionRate: decimal.NewFromInt(1), IsBase: true},
			2: {ID: 102, Name: "tuýp", ConversionRate: decimal.NewFromInt(1), IsBase: true},
			5: {ID: 105, Name: "cái", ConversionRate: decimal.NewFromInt(1), IsBase: true},
		},
		gates: make(map[int64]chan struct{}),
		calls: make(map[int64]int),
	}
}

func (s *unitSource) GetBaseUnit(ctx context.Context, itemID int64) (*unit.Definition, error) {
	s.mu.Lock()
	s.calls[itemID]++
	gate := s.gates[itemID]
	def := s.units[itemID]
	err := s.err
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, apperror.NewNotFound("unit", itemID)
	}
	return def, nil
}

func (s *unitSource) gate(itemID int64) chan struct{} {
	g := make(chan struct{})
	s.mu.Lock()
	s.gates[itemID] = g
	s.mu.Unlock()
	return g
}

func (s *unitSource) callCount(itemID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[itemID]
}

type recordingSubmitter struct {
	mu       sync.Mutex
	payloads []Payload
	err      error
	gate     chan struct{}
}

func (r *recordingSubmitter) CreateImport(ctx context.Context, p Payload) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return r.err
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

var (
	lidocaine = item.InventoryItem{ID: 1, Code: "VT001", Name: "Thuốc tê Lidocaine", WarehouseType: item.WarehouseCold, TotalQuantityOnHand: 25}
	composite = item.InventoryItem{ID: 2, Code: "VT002", Name: "Composite A2", WarehouseType: item.WarehouseCold, TotalQuantityOnHand: 3}
	mirror    = item.InventoryItem{ID: 5, Code: "DC005", Name: "Gương nha khoa", IsTool: true, WarehouseType: item.WarehouseNormal}
)

func newTestComposer(t *testing.T) (*Composer, *unitSource, *recordingSubmitter) {
	t.Helper()
	src := newUnitSource()
	sub := &recordingSubmitter{}
	c, err := NewComposer(Config{
		Resolver:     unit.NewResolver(src, logger.NewNop()),
		Submitter:    sub,
		Capabilities: security.Full(),
		Logger:       logger.NewNop(),
		Date:         types.MustDate("2025-03-15"),
	})
	require.NoError(t, err)
	return c, src, sub
}

// fillLine completes every field of a line except the item.
func fillLine(t *testing.T, c *Composer, index int, lot string) {
	t.Helper()
	require.NoError(t, c.SetLotNumber(index, lot))
	require.NoError(t, c.SetPurchasePrice(index, types.MustMoney("125000")))
	require.NoError(t, c.SetExpiryDate(index, types.MustDate("2026-12-31")))
}

func TestNewComposer_OpensWithOneLine(t *testing.T) {
	c, _, _ := newTestComposer(t)

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].Quantity)
	assert.Equal(t, documents.StateEditing, c.State())
}

func TestNewComposer_RequiresImportCapability(t *testing.T) {
	_, err := NewComposer(Config{
		Resolver:     unit.NewResolver(newUnitSource(), logger.NewNop()),
		Submitter:    &recordingSubmitter{},
		Capabilities: security.Capabilities{CanExport: true},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
}

func TestRemoveLine_LastLineRefused(t *testing.T) {
	c, _, _ := newTestComposer(t)
	ctx := context.Background()

	err := c.RemoveLine(ctx, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeLastLine))
	assert.Len(t, c.Lines(), 1)

	idx, err := c.AddLine()
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	require.NoError(t, c.RemoveLine(ctx, 0))
	assert.Len(t, c.Lines(), 1)
	assert.True(t, apperror.HasCode(c.RemoveLine(ctx, 0), apperror.CodeLastLine))
}

func TestSetItem_ResolvesBaseUnit(t *testing.T) {
	c, src, _ := newTestComposer(t)
	ctx := context.Background()

	require.NoError(t, c.SetItem(ctx, 0, lidocaine))
	assert.Equal(t, int64(101), c.Lines()[0].ResolvedUnitID)

	// Second line on the same item is served from the resolver cache.
	idx, err := c.AddLine()
	require.NoError(t, err)
	require.NoError(t, c.SetItem(ctx, idx, lidocaine))
	assert.Equal(t, int64(101), c.Lines()[idx].ResolvedUnitID)
	assert.Equal(t, 1, src.callCount(1))
}

func TestScenarioB_ToolNeedsNoExpiry(t *testing.T) {
	c, _, sub := newTestComposer(t)
	ctx := context.Background()

	require.NoError(t, c.SetItem(ctx, 0, lidocaine))
	require.NoError(t, c.SetLotNumber(0, "LOT-A"))
	require.NoError(t, c.SetPurchasePrice(0, types.MustMoney("15000")))

	err := c.Validate(ctx)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "expiryDate", appErr.Field())
	assert.Equal(t, 1, appErr.LineNo())

	require.NoError(t, c.SetItem(ctx, 0, mirror))
	require.NoError(t, c.Validate(ctx))
	require.NoError(t, c.Submit(ctx))

	require.Equal(t, 1, sub.count())
	line := sub.payloads[0].Items[0]
	assert.Equal(t, int64(5), line.ItemMasterID)
	assert.Equal(t, int64(105), line.UnitID)
	assert.Nil(t, line.ExpiryDate)
	assert.Equal(t, documents.StateClosed, c.State())
}

func TestScenarioC_IndependentLookupsLandOnTheirRows(t *testing.T) {
	c, src, _ := newTestComposer(t)
	ctx := context.Background()
	_, err := c.AddLine()
	require.NoError(t, err)
	_, err = c.AddLine()
	require.NoError(t, err)

	slow := src.gate(2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); assert.NoError(t, c.SetItem(ctx, 0, composite)) }()
	require.Eventually(t, func() bool { return src.callCount(2) == 1 }, time.Second, time.Millisecond)
	go func() { defer wg.Done(); assert.NoError(t, c.SetItem(ctx, 2, composite)) }()

	// Row 1 stays editable while both lookups are outstanding.
	require.NoError(t, c.SetItem(ctx, 1, lidocaine))
	require.NoError(t, c.SetLotNumber(1, "L-9"))
	assert.Equal(t, int64(101), c.Lines()[1].ResolvedUnitID)

	close(slow)
	wg.Wait()

	lines := c.Lines()
	assert.Equal(t, int64(102), lines[0].ResolvedUnitID)
	assert.Equal(t, int64(102), lines[2].ResolvedUnitID)
	assert.Equal(t, 1, src.callCount(2))
}

func TestSetItem_ResultFollowsRowAfterRemoval(t *testing.T) {
	c, src, _ := newTestComposer(t)
	ctx := context.Background()
	_, err := c.AddLine()
	require.NoError(t, err)

	slow := src.gate(2)
	done := make(chan error, 1)
	go func() { done <- c.SetItem(ctx, 1, composite) }()
	require.Eventually(t, func() bool { return src.callCount(2) == 1 }, time.Second, time.Millisecond)

	// Removing row 0 shifts the pending row to index 0.
	require.NoError(t, c.RemoveLine(ctx, 0))
	close(slow)
	require.NoError(t, <-done)

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "VT002", lines[0].ItemCode)
	assert.Equal(t, int64(102), lines[0].ResolvedUnitID)
}

func TestSetItem_StaleResultDiscarded(t *testing.T) {
	c, src, _ := newTestComposer(t)
	ctx := context.Background()

	slow := src.gate(2)
	done := make(chan error, 1)
	go func() { done <- c.SetItem(ctx, 0, composite) }()
	require.Eventually(t, func() bool { return src.callCount(2) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.SetItem(ctx, 0, lidocaine))
	close(slow)
	require.NoError(t, <-done)

	line := c.Lines()[0]
	assert.Equal(t, int64(1), line.ItemID)
	assert.Equal(t, int64(101), line.ResolvedUnitID)
}

func TestSetItem_ResolutionFailureIsRecoverable(t *testing.T) {
	c, src, _ := newTestComposer(t)
	ctx := context.Background()
	src.err = errors.New("connection reset")

	err := c.SetItem(ctx, 0, lidocaine)
	assert.True(t, apperror.IsResolution(err))

	line := c.Lines()[0]
	assert.Equal(t, int64(0), line.ResolvedUnitID)
	assert.Error(t, line.UnitError)

	// The row stays editable and validation names the unit.
	fillLine(t, c, 0, "LOT-A")
	appErr, _ := apperror.AsAppError(c.Validate(ctx))
	require.NotNil(t, appErr)
	assert.Equal(t, "unitId", appErr.Field())

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	require.NoError(t, c.RetryUnit(ctx, 0))
	assert.Equal(t, int64(101), c.Lines()[0].ResolvedUnitID)
	assert.NoError(t, c.Validate(ctx))
}

func TestValidate_OrderAndRowNumber(t *testing.T) {
	c, _, _ := newTestComposer(t)
	ctx := context.Background()
	require.NoError(t, c.SetItem(ctx, 0, lidocaine))
	fillLine(t, c, 0, "L1")

	_, err := c.AddLine()
	require.NoError(t, err)

	cases := []struct {
		name  string
		setup func()
		field string
	}{
		{"item", func() {}, "itemMasterId"},
		{"lot", func() { require.NoError(t, c.SetItem(ctx, 1, lidocaine)) }, "lotNumber"},
		{"quantity", func() {
			require.NoError(t, c.SetLotNumber(1, "L2"))
			require.NoError(t, c.SetQuantity(1, 0))
		}, "quantity"},
		{"price", func() { require.NoError(t, c.SetQuantity(1, 3)) }, "purchasePrice"},
		{"expiry", func() { require.NoError(t, c.SetPurchasePrice(1, types.MustMoney("1"))) }, "expiryDate"},
	}
	for _, tc := range cases {
		tc.setup()
		appErr, ok := apperror.AsAppError(c.Validate(ctx))
		require.True(t, ok, tc.name)
		assert.Equal(t, 2, appErr.LineNo(), tc.name)
		assert.Equal(t, tc.field, appErr.Field(), tc.name)
	}

	require.NoError(t, c.SetExpiryDate(1, types.MustDate("2027-01-01")))
	assert.NoError(t, c.Validate(ctx))
}

func TestValidate_HeaderDate(t *testing.T) {
	c, _, _ := newTestComposer(t)
	require.NoError(t, c.SetHeader(types.Date{}, 0, "", ""))

	appErr, ok := apperror.AsAppError(c.Validate(context.Background()))
	require.True(t, ok)
	assert.Equal(t, "transactionDate", appErr.Field())
}

func TestSubmit_PayloadShape(t *testing.T) {
	c, _, sub := newTestComposer(t)
	ctx := context.Background()
	require.NoError(t, c.SetHeader(types.MustDate("2025-03-16"), 7, "  HD-0012 ", ""))
	require.NoError(t, c.SetItem(ctx, 0, lidocaine))
	fillLine(t, c, 0, " LOT-A ")
	require.NoError(t, c.SetQuantity(0, 4))
	require.NoError(t, c.SetBinLocation(0, "Tủ lạnh 2"))

	var closed []documents.CloseReason
	c.OnClosed(func(ctx context.Context, kind documents.Kind, reason documents.CloseReason) {
		assert.Equal(t, documents.KindImport, kind)
		closed = append(closed, reason)
	})

	require.NoError(t, c.Submit(ctx))

	require.Equal(t, 1, sub.count())
	p := sub.payloads[0]
	assert.Equal(t, "2025-03-16", p.TransactionDate.String())
	require.NotNil(t, p.SupplierID)
	assert.Equal(t, int64(7), *p.SupplierID)
	assert.Equal(t, "HD-0012", p.InvoiceNumber)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "LOT-A", p.Items[0].LotNumber)
	assert.Equal(t, int64(4), p.Items[0].Quantity)
	assert.Equal(t, "Tủ lạnh 2", p.Items[0].BinLocation)
	assert.Equal(t, []documents.CloseReason{documents.ClosedSubmitted}, closed)

	assert.Empty(t, c.Lines())
	assert.True(t, apperror.HasCode(c.SetLotNumber(0, "x"), apperror.CodeComposerClosed))
}

func TestSubmit_FailureKeepsLines(t *testing.T) {
	c, _, sub := newTestComposer(t)
	ctx := context.Background()
	require.NoError(t, c.SetItem(ctx, 0, lidocaine))
	fillLine(t, c, 0, "LOT-A")
	sub.err = apperror.NewConflict(apperror.CodeDuplicate, "invoice already recorded")

	err := c.Submit(ctx)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicate))
	assert.Equal(t, err, c.LastError())
	assert.Equal(t, documents.StateEditing, c.State())

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "LOT-A", lines[0].LotNumber)

	sub.err = nil
	require.NoError(t, c.Submit(ctx))
	assert.Equal(t, 2, sub.count())
	assert.Nil(t, c.LastError())
}

func TestSubmit_InvalidDocumentNotSent(t *testing.T) {
	c, _, sub := newTestComposer(t)

	err := c.Submit(context.Background())
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, 0, sub.count())
	assert.Equal(t, documents.StateEditing, c.State())
}

func TestSubmit_SingleInFlight(t *testing.T) {
	c, _, sub := newTestComposer(t)
	ctx := context.Background()
	require.NoError(t, c.SetItem(ctx, 0, lidocaine))
	fillLine(t, c, 0, "LOT-A")
	sub.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- c.Submit(ctx) }()
	require.Eventually(t, func() bool { return c.State() == documents.StateSubmitting }, time.Second, time.Millisecond)

	assert.True(t, apperror.HasCode(c.Submit(ctx), apperror.CodeSubmissionInProgress))
	assert.True(t, apperror.HasCode(c.SetQuantity(0, 2), apperror.CodeSubmissionInProgress))
	assert.True(t, apperror.HasCode(c.Close(ctx), apperror.CodeSubmissionInProgress))

	close(sub.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, sub.count())
}

func TestSetQuantityInUnit_ConvertsToBase(t *testing.T) {
	c, _, _ := newTestComposer(t)
	box := unit.Definition{ID: 201, Name: "hộp", ConversionRate: decimal.NewFromInt(50)}

	require.NoError(t, c.SetQuantityInUnit(0, 2, box))
	assert.Equal(t, int64(100), c.Lines()[0].Quantity)

	half := unit.Definition{ID: 202, Name: "nửa", ConversionRate: decimal.RequireFromString("0.5")}
	assert.True(t, apperror.IsValidation(c.SetQuantityInUnit(0, 3, half)))
}

func TestEdits_RequireEditCapability(t *testing.T) {
	c, err := NewComposer(Config{
		Resolver:     unit.NewResolver(newUnitSource(), logger.NewNop()),
		Submitter:    &recordingSubmitter{},
		Capabilities: security.Capabilities{CanImport: true},
		Date:         types.MustDate("2025-03-15"),
	})
	require.NoError(t, err)

	_, err = c.AddLine()
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
	assert.True(t, apperror.HasCode(c.SetLotNumber(0, "x"), apperror.CodeForbidden))
	assert.True(t, apperror.HasCode(c.RetryUnit(context.Background(), 0), apperror.CodeForbidden))
}

func TestRetryUnit_RefusedAfterClose(t *testing.T) {
	c, src, _ := newTestComposer(t)
	ctx := context.Background()
	src.err = errors.New("connection reset")
	require.Error(t, c.SetItem(ctx, 0, lidocaine))
	require.NoError(t, c.Close(ctx))

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	err := c.RetryUnit(ctx, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeComposerClosed))
	assert.Equal(t, 1, src.callCount(1))
}

func TestClose_Discards(t *testing.T) {
	c, _, sub := newTestComposer(t)
	var reason documents.CloseReason = -1
	c.OnClosed(func(ctx context.Context, kind documents.Kind, r documents.CloseReason) { reason = r })

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, documents.ClosedDiscarded, reason)
	assert.Equal(t, documents.StateClosed, c.State())
	assert.Equal(t, 0, sub.count())
	assert.NoError(t, c.Close(context.Background()))
}
