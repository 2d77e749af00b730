package production

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type memRepo struct {
	mu     sync.Mutex
	ledger *inventorytest.Ledger
	orders map[int64]Order
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{ledger: inventorytest.NewLedger(), orders: map[int64]Order{}}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	restore := m.ledger.Snapshot()
	m.mu.Lock()
	saved := make(map[int64]Order, len(m.orders))
	for k, v := range m.orders {
		saved[k] = v
	}
	m.mu.Unlock()
	if err := fn(ctx, &memTx{Ledger: m.ledger, repo: m}); err != nil {
		restore()
		m.mu.Lock()
		m.orders = saved
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	o.Materials = append([]Material{}, o.Materials...)
	return o, nil
}

func (m *memRepo) ListOrders(_ context.Context, f ListFilter) ([]Order, int, Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Keyword != "" && !strings.Contains(strings.ToLower(o.Number+" "+o.ProductName), strings.ToLower(f.Keyword)) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	summary := Summarize(out)
	total := len(out)
	start := (f.Page - 1) * f.PerPage
	if start > total {
		start = total
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return out[start:end], total, summary, nil
}

type memTx struct {
	*inventorytest.Ledger
	repo *memRepo
}

func (t *memTx) LockSequence(context.Context, string) error { return nil }

func (t *memTx) NextSequence(_ context.Context, day time.Time) (int, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	prefix := NumberPrefix + day.Format("20060102") + "-"
	seq := 0
	for _, o := range t.repo.orders {
		if strings.HasPrefix(o.Number, prefix) {
			seq++
		}
	}
	return seq + 1, nil
}

func (t *memTx) InsertOrder(_ context.Context, o Order) (Order, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.nextID++
	o.ID = t.repo.nextID
	t.repo.orders[o.ID] = o
	return o, nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return t.repo.GetOrder(ctx, id)
}

func (t *memTx) UpdateOrder(_ context.Context, o Order) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, ok := t.repo.orders[o.ID]; !ok {
		return ErrOrderNotFound
	}
	t.repo.orders[o.ID] = o
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, ok := t.repo.orders[id]; !ok {
		return ErrOrderNotFound
	}
	delete(t.repo.orders, id)
	return nil
}

type observer struct {
	entries    []string
	rejections []string
}

func (o *observer) ObserveLedgerEntry(direction, cause, op string) {
	o.entries = append(o.entries, direction+"/"+cause+"/"+op)
}

func (o *observer) ObserveStockRejection(cause string) {
	o.rejections = append(o.rejections, cause)
}

type fixture struct {
	repo     *memRepo
	observer *observer
	svc      *Service
	table    inventory.Product
	plank    inventory.Product
	screw    inventory.Product
}

func newFixture() fixture {
	repo := newMemRepo()
	obs := &observer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, nil, inventory.NewNotifier(obs, nil, logger), logger)
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC) }
	return fixture{
		repo:     repo,
		observer: obs,
		svc:      svc,
		table:    repo.ledger.AddProduct(inventory.Product{Name: "Oak table", Unit: "pcs", UnitPrice: d(900), Type: inventory.ProductTypeFinishedGood}, 0),
		plank:    repo.ledger.AddProduct(inventory.Product{Name: "Oak plank", Unit: "m", UnitPrice: d(50), Type: inventory.ProductTypeMaterial}, 10),
		screw:    repo.ledger.AddProduct(inventory.Product{Name: "Screw", Unit: "pcs", UnitPrice: d(1), Type: inventory.ProductTypeMaterial}, 100),
	}
}

func d(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func (f fixture) stock(p inventory.Product) decimal.Decimal { return f.repo.ledger.Stock(p.ID) }

func (f fixture) lines(plank, screw int64) []MaterialInput {
	return []MaterialInput{
		{MaterialID: f.plank.ID, Quantity: d(plank)},
		{MaterialID: f.screw.ID, Quantity: d(screw)},
	}
}

func (f fixture) create(t *testing.T, qty, plank, screw int64) Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), CreateInput{ProductID: f.table.ID, Quantity: d(qty), Materials: f.lines(plank, screw)})
	require.NoError(t, err)
	return o
}

func (f fixture) done(o Order, plank, screw int64) UpdateInput {
	return UpdateInput{Quantity: o.Quantity, Status: StatusDone, Materials: f.lines(plank, screw)}
}

func TestCreateOrderDefaultsAndNumbering(t *testing.T) {
	f := newFixture()

	first := f.create(t, 2, 8, 40)
	second := f.create(t, 1, 1, 1)

	require.Equal(t, "SX20240305-001", first.Number)
	require.Equal(t, "SX20240305-002", second.Number)
	require.Equal(t, StatusInProgress, first.Status)
	require.True(t, first.UnitPrice.Equal(d(900)))
	require.Len(t, first.Materials, 2)
	require.Equal(t, "m", first.Materials[0].Unit)
	require.True(t, first.Materials[0].UnitPrice.Equal(d(50)))
	require.True(t, first.TotalValue().Equal(d(1800)))
	require.True(t, first.MaterialCost().Equal(d(440)))
	require.True(t, first.Profit().Equal(d(1360)))
	// Creating does not move stock.
	require.True(t, f.stock(f.plank).Equal(d(10)))
	require.Empty(t, f.observer.entries)
}

func TestCreateOrderChecksProductTypes(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateOrder(context.Background(), CreateInput{ProductID: f.plank.ID, Quantity: d(1)})
	require.ErrorIs(t, err, ErrNotFinishedGood)

	_, err = f.svc.CreateOrder(context.Background(), CreateInput{
		ProductID: f.table.ID,
		Quantity:  d(1),
		Materials: []MaterialInput{{MaterialID: f.table.ID, Quantity: d(1)}},
	})
	require.ErrorIs(t, err, ErrNotMaterial)

	_, err = f.svc.CreateOrder(context.Background(), CreateInput{ProductID: f.table.ID, Quantity: d(0)})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	_, err = f.svc.CreateOrder(context.Background(), CreateInput{
		ProductID: f.table.ID,
		Quantity:  d(1),
		Materials: []MaterialInput{{MaterialID: f.plank.ID, Quantity: d(-1)}},
	})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	require.Empty(t, f.repo.orders)
}

func TestCompletionPostsEntriesOnce(t *testing.T) {
	f := newFixture()
	o := f.create(t, 2, 8, 40)

	done, err := f.svc.UpdateOrder(context.Background(), o.ID, f.done(o, 8, 40))
	require.NoError(t, err)
	require.Equal(t, StatusDone, done.Status)
	require.NotNil(t, done.EndDate)

	require.True(t, f.stock(f.table).Equal(d(2)))
	require.True(t, f.stock(f.plank).Equal(d(2)))
	require.True(t, f.stock(f.screw).Equal(d(60)))

	entries := f.repo.ledger.EntriesFor(o.Cause())
	require.Len(t, entries, 3)
	require.Equal(t, inventory.DirectionImport, entries[0].Direction)
	require.Equal(t, "Production completed "+o.Number, entries[0].Note)
	require.True(t, entries[0].UnitPrice.Equal(d(900)))
	require.Equal(t, "Material consumed for production "+o.Number, entries[1].Note)
	require.True(t, entries[1].UnitPrice.Equal(d(50)))
	require.Equal(t, []string{
		"IMPORT/PRODUCTION_ORDER/insert",
		"EXPORT/PRODUCTION_ORDER/insert",
		"EXPORT/PRODUCTION_ORDER/insert",
	}, f.observer.entries)

	in := f.done(o, 8, 40)
	in.Notes = "varnished"
	again, err := f.svc.UpdateOrder(context.Background(), o.ID, in)
	require.NoError(t, err)
	require.Equal(t, "varnished", again.Notes)
	require.Equal(t, done.EndDate, again.EndDate)
	require.Len(t, f.repo.ledger.EntriesFor(o.Cause()), 3)
	require.True(t, f.stock(f.table).Equal(d(2)))
}

func TestCompletionChecksAllMaterialsFirst(t *testing.T) {
	f := newFixture()
	o := f.create(t, 1, 8, 40)

	_, err := f.svc.UpdateOrder(context.Background(), o.ID, f.done(o, 8, 101))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	var stockErr *inventory.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, f.screw.ID, stockErr.ProductID)

	require.Empty(t, f.observer.entries)
	require.Equal(t, []string{"PRODUCTION_ORDER"}, f.observer.rejections)
	require.Empty(t, f.repo.ledger.EntriesFor(o.Cause()))
	stored, err := f.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, stored.Status)
	require.Nil(t, stored.EndDate)
}

func TestCompletionSumsRepeatedMaterial(t *testing.T) {
	f := newFixture()
	o := f.create(t, 1, 1, 1)

	in := UpdateInput{Quantity: d(1), Status: StatusDone, Materials: []MaterialInput{
		{MaterialID: f.plank.ID, Quantity: d(6)},
		{MaterialID: f.plank.ID, Quantity: d(6)},
	}}
	_, err := f.svc.UpdateOrder(context.Background(), o.ID, in)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.True(t, f.stock(f.plank).Equal(d(10)))
}

func TestDoneOrderCannotChange(t *testing.T) {
	f := newFixture()
	o := f.create(t, 2, 8, 40)
	_, err := f.svc.UpdateOrder(context.Background(), o.ID, f.done(o, 8, 40))
	require.NoError(t, err)

	back := f.done(o, 8, 40)
	back.Status = StatusInProgress
	_, err = f.svc.UpdateOrder(context.Background(), o.ID, back)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.UpdateOrder(context.Background(), o.ID, f.done(o, 2, 40))
	require.ErrorIs(t, err, ErrOrderLocked)

	more := f.done(o, 8, 40)
	more.Quantity = d(3)
	_, err = f.svc.UpdateOrder(context.Background(), o.ID, more)
	require.ErrorIs(t, err, ErrOrderLocked)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDoneResaveIgnoresCatalogPriceChange(t *testing.T) {
	f := newFixture()
	o := f.create(t, 2, 8, 40)
	_, err := f.svc.UpdateOrder(context.Background(), o.ID, f.done(o, 8, 40))
	require.NoError(t, err)

	raised := f.plank
	raised.UnitPrice = d(60)
	f.repo.ledger.PutProduct(raised)

	again := f.done(o, 8, 40)
	again.Notes = "varnished"
	saved, err := f.svc.UpdateOrder(context.Background(), o.ID, again)
	require.NoError(t, err)
	require.Equal(t, "varnished", saved.Notes)
	require.True(t, saved.Materials[0].UnitPrice.Equal(d(50)))
	require.Len(t, f.repo.ledger.EntriesFor(o.Cause()), 3)
	require.True(t, f.stock(f.plank).Equal(d(2)))

	repriced := f.done(o, 8, 40)
	repriced.Materials[0].UnitPrice = decimal.NewNullDecimal(d(60))
	_, err = f.svc.UpdateOrder(context.Background(), o.ID, repriced)
	require.ErrorIs(t, err, ErrOrderLocked)
}

func TestEditReplacesMaterials(t *testing.T) {
	f := newFixture()
	o := f.create(t, 2, 8, 40)

	updated, err := f.svc.UpdateOrder(context.Background(), o.ID, UpdateInput{
		Quantity:  d(3),
		UnitPrice: decimal.NewNullDecimal(d(950)),
		Status:    StatusInProgress,
		Materials: []MaterialInput{{MaterialID: f.screw.ID, Quantity: d(10), UnitPrice: decimal.NewNullDecimal(d(2))}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Materials, 1)
	require.Equal(t, f.screw.ID, updated.Materials[0].MaterialID)
	require.True(t, updated.MaterialCost().Equal(d(20)))
	require.True(t, updated.TotalValue().Equal(d(2850)))
	require.Empty(t, f.repo.ledger.EntriesFor(o.Cause()))

	_, err = f.svc.UpdateOrder(context.Background(), o.ID, UpdateInput{Quantity: d(1), Status: "PAUSED"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDeleteDoneOrderReversesEntries(t *testing.T) {
	f := newFixture()
	o := f.create(t, 2, 8, 40)
	_, err := f.svc.UpdateOrder(context.Background(), o.ID, f.done(o, 8, 40))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteOrder(context.Background(), o.ID))
	require.Empty(t, f.repo.ledger.EntriesFor(o.Cause()))
	require.True(t, f.stock(f.table).Equal(d(0)))
	require.True(t, f.stock(f.plank).Equal(d(10)))
	require.True(t, f.stock(f.screw).Equal(d(100)))
	_, err = f.svc.GetOrder(context.Background(), o.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestDeleteRejectedWhenOutputWasShipped(t *testing.T) {
	f := newFixture()
	o := f.create(t, 2, 8, 40)
	_, err := f.svc.UpdateOrder(context.Background(), o.ID, f.done(o, 8, 40))
	require.NoError(t, err)
	_, err = inventory.Export(context.Background(), f.repo.ledger, inventory.MovementInput{ProductID: f.table.ID, Quantity: d(1), Note: "showroom"})
	require.NoError(t, err)

	err = f.svc.DeleteOrder(context.Background(), o.ID)
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.Len(t, f.repo.ledger.EntriesFor(o.Cause()), 3)
	_, err = f.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
}

func TestDeleteOpenOrderLeavesLedger(t *testing.T) {
	f := newFixture()
	o := f.create(t, 1, 1, 1)
	before := len(f.repo.ledger.Entries())

	require.NoError(t, f.svc.DeleteOrder(context.Background(), o.ID))
	require.Len(t, f.repo.ledger.Entries(), before)
	require.ErrorIs(t, f.svc.DeleteOrder(context.Background(), o.ID), ErrOrderNotFound)
}

func TestListOrdersSummarizesMatches(t *testing.T) {
	f := newFixture()
	a := f.create(t, 2, 8, 40)
	f.create(t, 1, 1, 10)
	_, err := f.svc.UpdateOrder(context.Background(), a.ID, f.done(a, 8, 40))
	require.NoError(t, err)

	list, err := f.svc.ListOrders(context.Background(), ListFilter{PerPage: 1})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, 2, list.Pagination.Total)
	require.True(t, list.Summary.ProductValue.Equal(d(2700)))
	require.True(t, list.Summary.MaterialCost.Equal(d(500)))
	require.True(t, list.Summary.Profit.Equal(d(2200)))

	done, err := f.svc.ListOrders(context.Background(), ListFilter{Status: StatusDone})
	require.NoError(t, err)
	require.Len(t, done.Items, 1)
	require.Equal(t, a.Number, done.Items[0].Number)

	_, err = f.svc.ListOrders(context.Background(), ListFilter{Status: "PAUSED"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}
