package products

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	internalShared "github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type memRepo struct {
	ledger   *inventorytest.Ledger
	mu       sync.Mutex
	products map[int64]Product
}

func newMemRepo() *memRepo {
	return &memRepo{ledger: inventorytest.NewLedger(), products: map[int64]Product{}}
}

type memTx struct {
	*inventorytest.Ledger
	repo *memRepo
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	saved := make(map[int64]Product, len(r.products))
	for k, v := range r.products {
		saved[k] = v
	}
	r.mu.Unlock()
	return r.ledger.WithTx(ctx, func(ctx context.Context, _ inventory.TxRepository) error {
		if err := fn(ctx, &memTx{Ledger: r.ledger, repo: r}); err != nil {
			r.mu.Lock()
			r.products = saved
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memRepo) fill(p Product) Product {
	p.Stock = r.ledger.Stock(p.ID)
	for _, e := range r.ledger.EntriesFor(inventory.Cause{Kind: inventory.CauseOpening, ID: p.ID}) {
		p.Opening = e.Quantity
	}
	return p
}

func (r *memRepo) List(ctx context.Context, f shared.ListFilters) ([]Product, int, error) {
	r.mu.Lock()
	var out []Product
	for _, p := range r.products {
		if f.Type != "" && string(p.Type) != f.Type {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for i := range out {
		out[i] = r.fill(out[i])
	}
	return shared.Paginate(out, f), len(out), nil
}

func (r *memRepo) Get(ctx context.Context, id int64) (Product, error) {
	r.mu.Lock()
	p, ok := r.products[id]
	r.mu.Unlock()
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return r.fill(p), nil
}

func (t *memTx) InsertProduct(ctx context.Context, p Product) (Product, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, existing := range t.repo.products {
		if existing.Code == p.Code {
			return Product{}, fmt.Errorf("product code %q: %w", p.Code, shared.ErrDuplicate)
		}
	}
	p.ID = t.NextID()
	t.PutProduct(p.Ledger())
	t.repo.products[p.ID] = p
	return p, nil
}

func (t *memTx) UpdateProduct(ctx context.Context, p Product) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, ok := t.repo.products[p.ID]; !ok {
		return shared.ErrNotFound
	}
	t.PutProduct(p.Ledger())
	t.repo.products[p.ID] = p
	return nil
}

func (t *memTx) CountMovements(ctx context.Context, productID int64) (int, error) {
	n := 0
	for _, e := range t.Entries() {
		if e.ProductID == productID && e.Direction != inventory.DirectionOpening {
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteProduct(ctx context.Context, productID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	delete(t.repo.products, productID)
	t.RemoveProduct(productID)
	return nil
}

type recordingAudit struct{ actions []string }

func (a *recordingAudit) Record(_ context.Context, log internalShared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func bolt() Product {
	return Product{Code: "BOLT-M8", Name: "Bolt M8", Type: inventory.ProductTypeMaterial, Unit: "pcs", UnitPrice: decimal.NewFromInt(2)}
}

func TestCreatePostsOpeningEntry(t *testing.T) {
	repo := newMemRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil, nil)

	p, err := svc.Create(context.Background(), bolt(), decimal.NewFromInt(100))
	require.NoError(t, err)
	require.NotZero(t, p.ID)

	opening := repo.ledger.EntriesFor(inventory.Cause{Kind: inventory.CauseOpening, ID: p.ID})
	require.Len(t, opening, 1)
	require.True(t, opening[0].Quantity.Equal(decimal.NewFromInt(100)))

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, got.Stock.Equal(decimal.NewFromInt(100)))
	require.Equal(t, []string{"product:create"}, audit.actions)
}

func TestBoltScenarioStock(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	p, err := svc.Create(ctx, bolt(), decimal.NewFromInt(100))
	require.NoError(t, err)

	inv := inventory.NewService(repo.ledger, nil, nil, nil)
	_, err = inv.PostImport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: decimal.NewFromInt(50), Note: "restock"})
	require.NoError(t, err)
	_, err = inv.PostExport(ctx, inventory.MovementInput{ProductID: p.ID, Quantity: decimal.NewFromInt(30), Note: "line 2"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.Stock.Equal(decimal.NewFromInt(120)))
	require.True(t, got.Opening.Equal(decimal.NewFromInt(100)))
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{Type: "GADGET", UnitPrice: decimal.NewFromInt(-1)}, decimal.Zero)
	var fields internalShared.FieldErrors
	require.ErrorAs(t, err, &fields)
	require.Contains(t, fields, "code")
	require.Contains(t, fields, "name")
	require.Contains(t, fields, "type")
	require.Contains(t, fields, "unit_price")

	_, err = svc.Create(ctx, bolt(), decimal.NewFromInt(-5))
	require.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestCreateDuplicateCodeRollsBack(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, bolt(), decimal.NewFromInt(1))
	require.NoError(t, err)

	_, err = svc.Create(ctx, bolt(), decimal.NewFromInt(1))
	require.ErrorIs(t, err, shared.ErrDuplicate)
	require.ErrorIs(t, err, internalShared.ErrConflict)
	require.Len(t, repo.ledger.Entries(), 1)
}

func TestUpdateKeepsOpening(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	p, err := svc.Create(ctx, bolt(), decimal.NewFromInt(10))
	require.NoError(t, err)

	changed := bolt()
	changed.UnitPrice = decimal.NewFromInt(3)
	updated, err := svc.Update(ctx, p.ID, changed)
	require.NoError(t, err)
	require.True(t, updated.UnitPrice.Equal(decimal.NewFromInt(3)))
	require.True(t, updated.Opening.Equal(decimal.NewFromInt(10)))

	v, err := inventory.NewService(repo.ledger, nil, nil, nil).Valuation(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, v.StockValue.Equal(decimal.NewFromInt(30)))

	_, err = svc.Update(ctx, 404, changed)
	require.ErrorIs(t, err, internalShared.ErrNotFound)
}

func TestDeleteRejectsMovedProduct(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	moved, err := svc.Create(ctx, bolt(), decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = inventory.NewService(repo.ledger, nil, nil, nil).PostExport(ctx, inventory.MovementInput{ProductID: moved.ID, Quantity: decimal.NewFromInt(1), Note: "sample"})
	require.NoError(t, err)

	err = svc.Delete(ctx, moved.ID)
	require.ErrorIs(t, err, shared.ErrInUse)
	require.ErrorIs(t, err, internalShared.ErrConflict)

	fresh := bolt()
	fresh.Code = "BOLT-M10"
	idle, err := svc.Create(ctx, fresh, decimal.NewFromInt(3))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, idle.ID))
	_, err = svc.Get(ctx, idle.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.False(t, repo.ledger.HasProduct(idle.ID))
}

func TestListFiltersByType(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, bolt(), decimal.NewFromInt(1))
	require.NoError(t, err)
	_, err = svc.Create(ctx, Product{Code: "CHAIR", Name: "Chair", Type: inventory.ProductTypeFinishedGood}, decimal.Zero)
	require.NoError(t, err)

	items, total, err := svc.List(ctx, shared.ListFilters{Type: "MATERIAL"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "BOLT-M8", items[0].Code)

	_, _, err = svc.List(ctx, shared.ListFilters{Type: "GADGET"})
	require.ErrorIs(t, err, internalShared.ErrValidation)
}
