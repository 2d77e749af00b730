// Package inventorytest provides an in-memory ledger for tests.
package inventorytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

// Ledger is an in-memory inventory.LedgerTx and inventory.RepositoryPort.
// WithTx rolls back every ledger change when the callback fails.
type Ledger struct {
	mu       sync.Mutex
	products map[int64]inventory.Product
	entries  map[int64]inventory.Entry
	nextID   int64
	// Locked counts LockProduct calls per product.
	Locked map[int64]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		products: map[int64]inventory.Product{},
		entries:  map[int64]inventory.Entry{},
		Locked:   map[int64]int{},
	}
}

// AddProduct registers p with an opening entry of the given quantity.
func (l *Ledger) AddProduct(p inventory.Product, opening int64) inventory.Product {
	l.mu.Lock()
	if p.ID == 0 {
		l.nextID++
		p.ID = l.nextID
	}
	if p.Type == "" {
		p.Type = inventory.ProductTypeFinishedGood
	}
	l.products[p.ID] = p
	l.mu.Unlock()
	if _, err := l.InsertEntry(context.Background(), inventory.Entry{
		ProductID: p.ID,
		Direction: inventory.DirectionOpening,
		Quantity:  decimal.NewFromInt(opening),
		Unit:      p.Unit,
		UnitPrice: p.UnitPrice,
		Cause:     inventory.Cause{Kind: inventory.CauseOpening, ID: p.ID},
		PostedAt:  time.Now().UTC(),
	}); err != nil {
		panic(err)
	}
	return p
}

// PutProduct stores p without touching the ledger.
func (l *Ledger) PutProduct(p inventory.Product) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.products[p.ID] = p
}

// HasProduct reports whether id is registered.
func (l *Ledger) HasProduct(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.products[id]
	return ok
}

// RemoveProduct drops a product and its opening entry.
func (l *Ledger) RemoveProduct(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.products, id)
	for eid, e := range l.entries {
		if e.ProductID == id && e.Direction == inventory.DirectionOpening {
			delete(l.entries, eid)
		}
	}
}

// NextID hands out ids shared with entries so fakes never collide.
func (l *Ledger) NextID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	return l.nextID
}

// Snapshot captures the ledger and returns a function restoring it.
func (l *Ledger) Snapshot() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	products := make(map[int64]inventory.Product, len(l.products))
	for k, v := range l.products {
		products[k] = v
	}
	entries := make(map[int64]inventory.Entry, len(l.entries))
	for k, v := range l.entries {
		entries[k] = v
	}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.products = products
		l.entries = entries
	}
}

// Entries returns all entries ordered by id.
func (l *Ledger) Entries() []inventory.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]inventory.Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EntriesFor returns entries linked to cause.
func (l *Ledger) EntriesFor(cause inventory.Cause) []inventory.Entry {
	var out []inventory.Entry
	for _, e := range l.Entries() {
		if e.Cause == cause {
			out = append(out, e)
		}
	}
	return out
}

// Stock returns the current stock of productID.
func (l *Ledger) Stock(productID int64) decimal.Decimal {
	t, _ := l.Totals(context.Background(), productID, 0)
	return t.Stock()
}

// WithTx runs fn against the ledger, restoring its state when fn fails.
func (l *Ledger) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	restore := l.Snapshot()
	if err := fn(ctx, l); err != nil {
		restore()
		return err
	}
	return nil
}

// LockProduct implements inventory.LedgerTx.
func (l *Ledger) LockProduct(ctx context.Context, productID int64) (inventory.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.products[productID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	l.Locked[productID]++
	return p, nil
}

// CurrentTotals implements inventory.RepositoryPort.
func (l *Ledger) CurrentTotals(ctx context.Context, productID int64) (inventory.Totals, error) {
	return l.Totals(ctx, productID, 0)
}

// Totals implements inventory.LedgerTx.
func (l *Ledger) Totals(ctx context.Context, productID, skip int64) (inventory.Totals, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var t inventory.Totals
	for _, e := range l.entries {
		if e.ProductID == productID && e.ID != skip {
			t = t.Add(e)
		}
	}
	return t, nil
}

// InsertEntry implements inventory.LedgerTx.
func (l *Ledger) InsertEntry(ctx context.Context, e inventory.Entry) (inventory.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.products[e.ProductID]; !ok {
		return inventory.Entry{}, inventory.ErrProductNotFound
	}
	l.nextID++
	e.ID = l.nextID
	e.ProductName = l.products[e.ProductID].Name
	l.entries[e.ID] = e
	return e, nil
}

// GetEntryForUpdate implements inventory.LedgerTx.
func (l *Ledger) GetEntryForUpdate(ctx context.Context, id int64) (inventory.Entry, error) {
	return l.GetEntry(ctx, id)
}

// UpdateEntry implements inventory.LedgerTx.
func (l *Ledger) UpdateEntry(ctx context.Context, e inventory.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[e.ID]; !ok {
		return inventory.ErrEntryNotFound
	}
	l.entries[e.ID] = e
	return nil
}

// DeleteEntry implements inventory.LedgerTx.
func (l *Ledger) DeleteEntry(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[id]; !ok {
		return inventory.ErrEntryNotFound
	}
	delete(l.entries, id)
	return nil
}

// EntriesByCause implements inventory.LedgerTx.
func (l *Ledger) EntriesByCause(ctx context.Context, cause inventory.Cause) ([]inventory.Entry, error) {
	return l.EntriesFor(cause), nil
}

// GetEntry implements inventory.RepositoryPort.
func (l *Ledger) GetEntry(ctx context.Context, id int64) (inventory.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return inventory.Entry{}, inventory.ErrEntryNotFound
	}
	return e, nil
}

// GetProduct implements inventory.RepositoryPort.
func (l *Ledger) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

// ListEntries implements inventory.RepositoryPort.
func (l *Ledger) ListEntries(ctx context.Context, f inventory.EntryFilter) ([]inventory.Entry, int, error) {
	var matched []inventory.Entry
	for _, e := range l.Entries() {
		if f.Direction != "" && e.Direction != f.Direction {
			continue
		}
		if f.ProductID > 0 && e.ProductID != f.ProductID {
			continue
		}
		if f.Keyword != "" && !strings.Contains(strings.ToLower(e.ProductName), strings.ToLower(f.Keyword)) {
			continue
		}
		if f.Cause != nil && (e.Cause.Kind != f.Cause.Kind || (f.Cause.ID > 0 && e.Cause.ID != f.Cause.ID)) {
			continue
		}
		if !f.From.IsZero() && e.PostedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.PostedAt.After(f.To) {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	start := (f.Page - 1) * f.PerPage
	if f.Page <= 0 || f.PerPage <= 0 {
		return matched, total, nil
	}
	if start >= total {
		return []inventory.Entry{}, total, nil
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// ProductTotals implements inventory.RepositoryPort.
func (l *Ledger) ProductTotals(ctx context.Context, f inventory.ValuationFilter) ([]inventory.ProductTotals, error) {
	l.mu.Lock()
	products := make([]inventory.Product, 0, len(l.products))
	for _, p := range l.products {
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if f.Keyword != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Keyword)) {
			continue
		}
		products = append(products, p)
	}
	l.mu.Unlock()
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	out := make([]inventory.ProductTotals, 0, len(products))
	for _, p := range products {
		t, _ := l.Totals(ctx, p.ID, 0)
		out = append(out, inventory.ProductTotals{Product: p, Totals: t})
	}
	return out, nil
}
