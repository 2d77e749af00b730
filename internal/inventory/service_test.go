package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type fakeAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

type fakeObserver struct {
	mu         sync.Mutex
	entries    []string
	rejections []string
}

func (f *fakeObserver) ObserveLedgerEntry(direction, cause, op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, direction+"/"+cause+"/"+op)
}

func (f *fakeObserver) ObserveStockRejection(cause string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejections = append(f.rejections, cause)
}

type fakeInvalidator struct {
	bumps int
	err   error
}

func (f *fakeInvalidator) Bump(context.Context) error {
	f.bumps++
	return f.err
}

type fixture struct {
	ledger   *inventorytest.Ledger
	audit    *fakeAudit
	observer *fakeObserver
	cache    *fakeInvalidator
	svc      *inventory.Service
}

func newFixture() fixture {
	f := fixture{
		ledger:   inventorytest.NewLedger(),
		audit:    &fakeAudit{},
		observer: &fakeObserver{},
		cache:    &fakeInvalidator{},
	}
	f.svc = inventory.NewService(f.ledger, f.audit, inventory.NewNotifier(f.observer, f.cache, nil), nil)
	return f
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func TestPostImportThenExport(t *testing.T) {
	f := newFixture()
	ctx := shared.ContextWithIdentity(context.Background(), shared.Identity{UserID: 9})
	p := f.ledger.AddProduct(inventory.Product{Name: "Oak table", Unit: "pcs", UnitPrice: dec("150")}, 5)

	imp, err := f.svc.PostImport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(3), SupplierID: 4, Note: "restock"})
	require.NoError(t, err)
	require.Equal(t, inventory.DirectionImport, imp.Direction)
	require.Equal(t, inventory.Manual, imp.Cause)
	require.True(t, imp.UnitPrice.Equal(dec("150")), "price defaults to product price")
	require.Equal(t, "pcs", imp.Unit)
	require.Equal(t, int64(9), imp.CreatedBy)

	exp, err := f.svc.PostExport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(8), UnitPrice: decimal.NewNullDecimal(dec("0")), Note: "sold out"})
	require.NoError(t, err)
	require.True(t, exp.UnitPrice.IsZero(), "explicit zero price is kept")

	stock, err := f.svc.CurrentStock(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, stock.IsZero())

	require.Equal(t, []string{"IMPORT/MANUAL/insert", "EXPORT/MANUAL/insert"}, f.observer.entries)
	require.Equal(t, 2, f.cache.bumps)
	require.Len(t, f.audit.logs, 2)
	require.Equal(t, "inventory:import", f.audit.logs[0].Action)
}

func TestPostManualValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.ledger.AddProduct(inventory.Product{Name: "Bolt", UnitPrice: dec("1")}, 10)

	_, err := f.svc.PostImport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(1)})
	require.ErrorIs(t, err, inventory.ErrNoteRequired)

	_, err = f.svc.PostImport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(0), Note: "x"})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	_, err = f.svc.PostImport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(1), UnitPrice: decimal.NewNullDecimal(dec("-1")), Note: "x"})
	require.ErrorIs(t, err, inventory.ErrInvalidUnitPrice)

	_, err = f.svc.PostImport(ctx, inventory.MovementInput{ProductID: 999, Quantity: qty(1), Note: "x"})
	require.ErrorIs(t, err, inventory.ErrProductNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Len(t, f.ledger.Entries(), 1)
	require.Zero(t, f.cache.bumps)
}

func TestExportRejectsInsufficientStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.ledger.AddProduct(inventory.Product{Name: "Lamp", UnitPrice: dec("7")}, 5)

	_, err := f.svc.PostExport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(6), Note: "too many"})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.False(t, errors.Is(err, inventory.ErrOutOfStock))
	var se *inventory.StockError
	require.True(t, errors.As(err, &se))
	require.True(t, se.Available.Equal(qty(5)))
	require.True(t, f.ledger.Stock(p.ID).Equal(qty(5)))
	require.Equal(t, []string{"MANUAL"}, f.observer.rejections)

	_, err = f.svc.PostExport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(5), Note: "all"})
	require.NoError(t, err)

	_, err = f.svc.PostExport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(1), Note: "none left"})
	require.ErrorIs(t, err, inventory.ErrOutOfStock)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
}

func TestEditExportExcludesItself(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.ledger.AddProduct(inventory.Product{Name: "Rope", UnitPrice: dec("2")}, 10)
	exp, err := f.svc.PostExport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(4), Note: "cut"})
	require.NoError(t, err)

	edited, err := f.svc.EditEntry(ctx, exp.ID, inventory.RevisionInput{Quantity: qty(10), Note: "whole roll"})
	require.NoError(t, err)
	require.True(t, edited.Quantity.Equal(qty(10)))
	require.Equal(t, "whole roll", edited.Note)
	require.True(t, f.ledger.Stock(p.ID).IsZero())

	_, err = f.svc.EditEntry(ctx, exp.ID, inventory.RevisionInput{Quantity: qty(11)})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.True(t, f.ledger.Stock(p.ID).IsZero())
}

func TestEditImportCannotLeaveStockNegative(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.ledger.AddProduct(inventory.Product{Name: "Glue", UnitPrice: dec("3")}, 0)
	imp, err := f.svc.PostImport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(10), Note: "in"})
	require.NoError(t, err)
	_, err = f.svc.PostExport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(8), Note: "out"})
	require.NoError(t, err)

	_, err = f.svc.EditEntry(ctx, imp.ID, inventory.RevisionInput{Quantity: qty(5)})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)

	edited, err := f.svc.EditEntry(ctx, imp.ID, inventory.RevisionInput{Quantity: qty(8), UnitPrice: decimal.NewNullDecimal(dec("2.5"))})
	require.NoError(t, err)
	require.True(t, edited.UnitPrice.Equal(dec("2.5")))
	require.True(t, f.ledger.Stock(p.ID).IsZero())
}

func TestDeleteEntryRestoresStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.ledger.AddProduct(inventory.Product{Name: "Nail", UnitPrice: dec("0.1")}, 10)
	exp, err := f.svc.PostExport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(4), Note: "out"})
	require.NoError(t, err)

	removed, err := f.svc.DeleteEntry(ctx, exp.ID)
	require.NoError(t, err)
	require.Equal(t, exp.ID, removed.ID)
	require.True(t, f.ledger.Stock(p.ID).Equal(qty(10)))

	_, err = f.svc.GetEntry(ctx, exp.ID)
	require.ErrorIs(t, err, inventory.ErrEntryNotFound)
	require.Contains(t, f.observer.entries, "EXPORT/MANUAL/delete")
}

func TestDeleteImportGuardsNegativeStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.ledger.AddProduct(inventory.Product{Name: "Tape", UnitPrice: dec("1")}, 0)
	imp, err := f.svc.PostImport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(5), Note: "in"})
	require.NoError(t, err)
	_, err = f.svc.PostExport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(2), Note: "out"})
	require.NoError(t, err)

	_, err = f.svc.DeleteEntry(ctx, imp.ID)
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.True(t, f.ledger.Stock(p.ID).Equal(qty(3)))
}

func TestOpeningEntryIsImmutable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.ledger.AddProduct(inventory.Product{Name: "Screw"}, 4)
	opening := f.ledger.EntriesFor(inventory.Cause{Kind: inventory.CauseOpening, ID: p.ID})
	require.Len(t, opening, 1)

	_, err := f.svc.EditEntry(ctx, opening[0].ID, inventory.RevisionInput{Quantity: qty(1)})
	require.ErrorIs(t, err, inventory.ErrOpeningImmutable)
	_, err = f.svc.DeleteEntry(ctx, opening[0].ID)
	require.ErrorIs(t, err, inventory.ErrOpeningImmutable)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestRemoveCausedReversesAllEntries(t *testing.T) {
	ledger := inventorytest.NewLedger()
	ctx := context.Background()
	good := ledger.AddProduct(inventory.Product{Name: "Cabinet", Type: inventory.ProductTypeFinishedGood}, 0)
	wood := ledger.AddProduct(inventory.Product{Name: "Plank", Type: inventory.ProductTypeMaterial}, 20)
	cause := inventory.Cause{Kind: inventory.CauseProductionOrder, ID: 77}

	err := ledger.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		if _, err := inventory.Import(ctx, tx, inventory.MovementInput{ProductID: good.ID, Quantity: qty(2), Cause: cause}); err != nil {
			return err
		}
		_, err := inventory.Export(ctx, tx, inventory.MovementInput{ProductID: wood.ID, Quantity: qty(8), Cause: cause})
		return err
	})
	require.NoError(t, err)
	require.Len(t, ledger.EntriesFor(cause), 2)

	var removed []inventory.Entry
	err = ledger.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		rec := inventory.Record(tx)
		var err error
		removed, err = inventory.RemoveCaused(ctx, rec, cause)
		require.Len(t, rec.Changes(), 2)
		return err
	})
	require.NoError(t, err)
	require.Len(t, removed, 2)
	require.Empty(t, ledger.EntriesFor(cause))
	require.True(t, ledger.Stock(good.ID).IsZero())
	require.True(t, ledger.Stock(wood.ID).Equal(qty(20)))
}

func TestRemoveCausedRejectsNegativeStock(t *testing.T) {
	ledger := inventorytest.NewLedger()
	ctx := context.Background()
	good := ledger.AddProduct(inventory.Product{Name: "Shelf"}, 0)
	cause := inventory.Cause{Kind: inventory.CauseProductionOrder, ID: 5}

	require.NoError(t, ledger.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.Import(ctx, tx, inventory.MovementInput{ProductID: good.ID, Quantity: qty(3), Cause: cause})
		return err
	}))
	require.NoError(t, ledger.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.Export(ctx, tx, inventory.MovementInput{ProductID: good.ID, Quantity: qty(2)})
		return err
	}))

	err := ledger.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.RemoveCaused(ctx, tx, cause)
		return err
	})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.Len(t, ledger.EntriesFor(cause), 1)
}

func TestFailedTransactionLeavesLedgerUntouched(t *testing.T) {
	ledger := inventorytest.NewLedger()
	ctx := context.Background()
	a := ledger.AddProduct(inventory.Product{Name: "A"}, 5)
	b := ledger.AddProduct(inventory.Product{Name: "B"}, 1)

	err := ledger.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		if _, err := inventory.Export(ctx, tx, inventory.MovementInput{ProductID: a.ID, Quantity: qty(5)}); err != nil {
			return err
		}
		_, err := inventory.Export(ctx, tx, inventory.MovementInput{ProductID: b.ID, Quantity: qty(2)})
		return err
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.True(t, ledger.Stock(a.ID).Equal(qty(5)))
	require.True(t, ledger.Stock(b.ID).Equal(qty(1)))
}

func TestListEntriesFiltersAndPaginates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.ledger.AddProduct(inventory.Product{Name: "Brush"}, 1)
	for i := 0; i < 3; i++ {
		_, err := f.svc.PostImport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: qty(1), Note: "in"})
		require.NoError(t, err)
	}

	entries, page, err := f.svc.ListEntries(ctx, inventory.EntryFilter{Direction: inventory.DirectionImport, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 3, page.Total)

	_, _, err = f.svc.ListEntries(ctx, inventory.EntryFilter{Direction: "SIDEWAYS"})
	require.ErrorIs(t, err, inventory.ErrInvalidDirection)
}

func TestInventoryValuation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.AddProduct(inventory.Product{Name: "Sofa", UnitPrice: dec("300")}, 2)
	m := f.ledger.AddProduct(inventory.Product{Name: "Fabric", Type: inventory.ProductTypeMaterial, UnitPrice: dec("4")}, 50)
	_, err := f.svc.PostExport(ctx, inventory.MovementInput{ProductID: m.ID, Quantity: qty(10), Note: "cut"})
	require.NoError(t, err)

	report, err := f.svc.InventoryValuation(ctx, inventory.ValuationFilter{})
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	require.True(t, report.TotalStockValue.Equal(dec("760")))
	require.True(t, report.TotalExportValue.Equal(dec("40")))

	materials, err := f.svc.InventoryValuation(ctx, inventory.ValuationFilter{Type: inventory.ProductTypeMaterial})
	require.NoError(t, err)
	require.Len(t, materials.Items, 1)
	require.True(t, materials.Items[0].Stock.Equal(qty(40)))

	_, err = f.svc.InventoryValuation(ctx, inventory.ValuationFilter{Type: "GADGET"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNotifierSurvivesCacheFailure(t *testing.T) {
	cache := &fakeInvalidator{err: errors.New("redis down")}
	n := inventory.NewNotifier(nil, cache, nil)
	n.LedgerChanged(context.Background(), []inventory.Change{{Op: inventory.ChangeInserted}})
	n.Invalidate(context.Background())
	require.Equal(t, 2, cache.bumps)

	var nilNotifier *inventory.Notifier
	nilNotifier.LedgerChanged(context.Background(), []inventory.Change{{Op: inventory.ChangeInserted}})
	nilNotifier.StockRejected(inventory.CauseManual)
}
