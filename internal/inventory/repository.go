package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LedgerTx
}

// TxStore implements LedgerTx on a pgx transaction. Other modules embed it in
// their own transactional repositories so ledger writes share their transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

const entryColumns = `e.id, e.product_id, p.name, COALESCE(e.supplier_id, 0), e.direction, e.quantity, e.unit, e.unit_price, e.note, e.cause_kind, COALESCE(e.cause_id, 0), COALESCE(e.created_by, 0), e.posted_at`

const totalsSelect = `SELECT
	COALESCE(SUM(quantity) FILTER (WHERE direction = 'OPENING'), 0),
	COALESCE(SUM(quantity) FILTER (WHERE direction = 'IMPORT'), 0),
	COALESCE(SUM(quantity) FILTER (WHERE direction = 'EXPORT'), 0)
FROM inventory_entries
WHERE product_id = $1 AND ($2::bigint = 0 OR id <> $2)`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ProductID, &e.ProductName, &e.SupplierID, &e.Direction, &e.Quantity, &e.Unit, &e.UnitPrice, &e.Note, &e.Cause.Kind, &e.Cause.ID, &e.CreatedBy, &e.PostedAt)
	return e, err
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.Unit, &p.UnitPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func queryTotals(ctx context.Context, q db.Querier, productID, excludeID int64) (Totals, error) {
	var t Totals
	err := q.QueryRow(ctx, totalsSelect, productID, excludeID).Scan(&t.Opening, &t.Imported, &t.Exported)
	return t, err
}

// LockProduct implements LedgerTx.
func (s *TxStore) LockProduct(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(s.tx.QueryRow(ctx, `SELECT id, code, name, product_type, unit, unit_price FROM products WHERE id = $1 FOR UPDATE`, productID))
}

// Totals implements LedgerTx.
func (s *TxStore) Totals(ctx context.Context, productID, excludeEntryID int64) (Totals, error) {
	return queryTotals(ctx, s.tx, productID, excludeEntryID)
}

// InsertEntry implements LedgerTx.
func (s *TxStore) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO inventory_entries (product_id, supplier_id, direction, quantity, unit, unit_price, note, cause_kind, cause_id, created_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		e.ProductID, db.NullInt(e.SupplierID), string(e.Direction), e.Quantity, e.Unit, e.UnitPrice, e.Note, string(e.Cause.Kind), db.NullInt(e.Cause.ID), db.NullInt(e.CreatedBy), e.PostedAt).Scan(&e.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("inventory: insert entry: %w", err)
	}
	return e, nil
}

// GetEntryForUpdate implements LedgerTx.
func (s *TxStore) GetEntryForUpdate(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(s.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM inventory_entries e JOIN products p ON p.id = e.product_id WHERE e.id = $1 FOR UPDATE OF e`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

// UpdateEntry implements LedgerTx.
func (s *TxStore) UpdateEntry(ctx context.Context, e Entry) error {
	tag, err := s.tx.Exec(ctx, `UPDATE inventory_entries SET quantity=$2, unit_price=$3, note=$4, posted_at=$5 WHERE id=$1`, e.ID, e.Quantity, e.UnitPrice, e.Note, e.PostedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// DeleteEntry implements LedgerTx.
func (s *TxStore) DeleteEntry(ctx context.Context, id int64) error {
	tag, err := s.tx.Exec(ctx, `DELETE FROM inventory_entries WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// EntriesByCause implements LedgerTx.
func (s *TxStore) EntriesByCause(ctx context.Context, cause Cause) ([]Entry, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+entryColumns+` FROM inventory_entries e JOIN products p ON p.id = e.product_id WHERE e.cause_kind = $1 AND e.cause_id = $2 ORDER BY e.id`, string(cause.Kind), cause.ID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetEntry loads one committed entry.
func (r *Repository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM inventory_entries e JOIN products p ON p.id = e.product_id WHERE e.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

// GetProduct loads the ledger view of a product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT id, code, name, product_type, unit, unit_price FROM products WHERE id = $1`, id))
}

// CurrentTotals aggregates committed entries for a product.
func (r *Repository) CurrentTotals(ctx context.Context, productID int64) (Totals, error) {
	return queryTotals(ctx, r.pool, productID, 0)
}

// ListEntries returns a page of entries and the total match count.
func (r *Repository) ListEntries(ctx context.Context, f EntryFilter) ([]Entry, int, error) {
	where, args := entryWhere(f)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_entries e JOIN products p ON p.id = e.product_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM inventory_entries e JOIN products p ON p.id = e.product_id`+where+
		fmt.Sprintf(` ORDER BY e.posted_at DESC, e.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	entries, err := collectEntries(rows)
	return entries, total, err
}

func entryWhere(f EntryFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Direction != "" {
		add("e.direction = $%d", string(f.Direction))
	}
	if f.ProductID > 0 {
		add("e.product_id = $%d", f.ProductID)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		add("p.name ILIKE '%%' || $%d || '%%'", kw)
	}
	if f.Cause != nil {
		add("e.cause_kind = $%d", string(f.Cause.Kind))
		if f.Cause.ID > 0 {
			add("e.cause_id = $%d", f.Cause.ID)
		}
	}
	if !f.From.IsZero() {
		add("e.posted_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("e.posted_at <= $%d", f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ProductTotals returns every matching product with its ledger totals.
func (r *Repository) ProductTotals(ctx context.Context, f ValuationFilter) ([]ProductTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.name, p.product_type, p.unit, p.unit_price,
	COALESCE(SUM(e.quantity) FILTER (WHERE e.direction = 'OPENING'), 0),
	COALESCE(SUM(e.quantity) FILTER (WHERE e.direction = 'IMPORT'), 0),
	COALESCE(SUM(e.quantity) FILTER (WHERE e.direction = 'EXPORT'), 0)
FROM products p
LEFT JOIN inventory_entries e ON e.product_id = p.id
WHERE ($1 = '' OR p.product_type = $1) AND ($2 = '' OR p.name ILIKE '%' || $2 || '%')
GROUP BY p.id
ORDER BY p.name, p.id`, string(f.Type), strings.TrimSpace(f.Keyword))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ProductTotals{}
	for rows.Next() {
		var pt ProductTotals
		if err := rows.Scan(&pt.Product.ID, &pt.Product.Code, &pt.Product.Name, &pt.Product.Type, &pt.Product.Unit, &pt.Product.UnitPrice,
			&pt.Totals.Opening, &pt.Totals.Imported, &pt.Totals.Exported); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}
