package sales

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-wms/internal/procurement"
)

// purchaseRepo backs a procurement.Service with the same ledger the sales
// fixture uses.
type purchaseRepo struct {
	mu        sync.Mutex
	ledger    *inventorytest.Ledger
	purchases map[int64]procurement.PurchaseOrder
	nextID    int64
}

func (r *purchaseRepo) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	restore := r.ledger.Snapshot()
	if err := fn(ctx, &purchaseTx{Ledger: r.ledger, repo: r}); err != nil {
		restore()
		return err
	}
	return nil
}

func (r *purchaseRepo) GetPurchase(_ context.Context, id int64) (procurement.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.purchases[id]
	if !ok {
		return procurement.PurchaseOrder{}, procurement.ErrPurchaseNotFound
	}
	return po, nil
}

func (r *purchaseRepo) ListPurchases(context.Context, procurement.ListFilter) ([]procurement.PurchaseOrder, int, decimal.Decimal, error) {
	return nil, 0, decimal.Zero, nil
}

type purchaseTx struct {
	*inventorytest.Ledger
	repo *purchaseRepo
}

func (t *purchaseTx) LockSequence(context.Context, string) error { return nil }

func (t *purchaseTx) NextSequence(_ context.Context, day time.Time) (int, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	prefix := procurement.NumberPrefix + day.Format("20060102") + "-"
	seq := 0
	for _, po := range t.repo.purchases {
		if strings.HasPrefix(po.Number, prefix) {
			seq++
		}
	}
	return seq + 1, nil
}

func (t *purchaseTx) SupplierName(context.Context, int64) (string, error) { return "Timber Co", nil }

func (t *purchaseTx) InsertPurchase(_ context.Context, po procurement.PurchaseOrder) (procurement.PurchaseOrder, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.nextID++
	po.ID = t.repo.nextID
	t.repo.purchases[po.ID] = po
	return po, nil
}

func (t *purchaseTx) GetPurchaseForUpdate(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	return t.repo.GetPurchase(ctx, id)
}

func (t *purchaseTx) UpdatePurchase(_ context.Context, po procurement.PurchaseOrder) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, ok := t.repo.purchases[po.ID]; !ok {
		return procurement.ErrPurchaseNotFound
	}
	t.repo.purchases[po.ID] = po
	return nil
}

func (t *purchaseTx) DeletePurchase(_ context.Context, id int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, ok := t.repo.purchases[id]; !ok {
		return procurement.ErrPurchaseNotFound
	}
	delete(t.repo.purchases, id)
	return nil
}

func TestReceiptDeliveryAndPurchaseDeletion(t *testing.T) {
	f := newFixture(0)
	bolt := f.repo.ledger.AddProduct(inventory.Product{Name: "Bolt", Unit: "pcs", UnitPrice: decimal.NewFromInt(2), Type: inventory.ProductTypeMaterial}, 100)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	purchases := procurement.NewService(&purchaseRepo{ledger: f.repo.ledger, purchases: map[int64]procurement.PurchaseOrder{}}, nil, inventory.NewNotifier(nil, nil, logger), logger)

	ctx := context.Background()
	po, err := purchases.CreatePurchase(ctx, procurement.CreateInput{ProductID: bolt.ID, SupplierID: 3, Quantity: qty(50)})
	require.NoError(t, err)
	_, err = purchases.UpdatePurchase(ctx, po.ID, procurement.UpdateInput{
		ProductID:  po.ProductID,
		SupplierID: po.SupplierID,
		Quantity:   po.Quantity,
		Unit:       po.Unit,
		Status:     procurement.StatusReceived,
	})
	require.NoError(t, err)
	require.True(t, f.repo.ledger.Stock(bolt.ID).Equal(qty(150)))

	o, err := f.svc.CreateOrder(staff(), CreateInput{ProductID: bolt.ID, CustomerID: f.customer.ID, Quantity: qty(30)})
	require.NoError(t, err)
	delivered, err := f.svc.UpdateOrder(staff(), o.ID, deliverInput(o))
	require.NoError(t, err)
	require.Equal(t, WarehouseDelivered, delivered.WarehouseStatus)
	require.True(t, f.repo.ledger.Stock(bolt.ID).Equal(qty(120)))

	require.NoError(t, purchases.DeletePurchase(ctx, po.ID))
	require.True(t, f.repo.ledger.Stock(bolt.ID).Equal(qty(120)))
	require.Len(t, f.repo.ledger.EntriesFor(po.Cause()), 1)
	require.Len(t, f.repo.ledger.EntriesFor(o.Cause()), 1)
}
