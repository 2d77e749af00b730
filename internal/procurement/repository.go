package procurement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for purchase orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations sharing the ledger's transaction.
type TxRepository interface {
	inventory.LedgerTx

	LockSequence(ctx context.Context, key string) error
	NextSequence(ctx context.Context, day time.Time) (int, error)
	// SupplierName returns the supplier's name or ErrSupplierNotFound.
	SupplierName(ctx context.Context, id int64) (string, error)
	InsertPurchase(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	GetPurchaseForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePurchase(ctx context.Context, po PurchaseOrder) error
	DeletePurchase(ctx context.Context, id int64) error
}

type txRepo struct {
	*inventory.TxStore
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: inventory.NewTxStore(tx), tx: tx})
	})
}

const purchaseSelect = `SELECT po.id, po.number, po.product_id, p.name, po.supplier_id, s.name, po.quantity, po.unit,
	po.unit_price, po.description, po.order_date, po.received_date, po.status, po.created_at, po.updated_at
FROM purchase_orders po
JOIN products p ON p.id = po.product_id
JOIN suppliers s ON s.id = po.supplier_id`

func scanPurchase(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.ProductID, &po.ProductName, &po.SupplierID, &po.SupplierName, &po.Quantity, &po.Unit,
		&po.UnitPrice, &po.Description, &po.OrderDate, &po.ReceivedDate, &po.Status, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrPurchaseNotFound
	}
	return po, err
}

// GetPurchase returns a purchase order by id.
func (r *Repository) GetPurchase(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanPurchase(r.pool.QueryRow(ctx, purchaseSelect+` WHERE po.id = $1`, id))
}

// ListPurchases returns one page, newest first, with the match count and the
// purchase value of every match.
func (r *Repository) ListPurchases(ctx context.Context, f ListFilter) ([]PurchaseOrder, int, decimal.Decimal, error) {
	where, args := purchaseWhere(f)

	var (
		total int
		value decimal.Decimal
	)
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(po.quantity * po.unit_price), 0)
FROM purchase_orders po
JOIN products p ON p.id = po.product_id`+where, args...).Scan(&total, &value)
	if err != nil {
		return nil, 0, decimal.Zero, fmt.Errorf("summarize purchases: %w", err)
	}

	query := purchaseSelect + where + ` ORDER BY po.order_date DESC, po.id DESC`
	if f.PerPage > 0 {
		n := len(args)
		query += ` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
		args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, decimal.Zero, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()
	out := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, decimal.Zero, err
		}
		out = append(out, po)
	}
	return out, total, value, rows.Err()
}

func purchaseWhere(f ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.Keyword != "" {
		add(`(po.number ILIKE ? OR p.name ILIKE ?)`, "%"+f.Keyword+"%")
	}
	if f.Status != "" {
		add(`po.status = ?`, f.Status)
	}
	if !f.From.IsZero() {
		add(`po.order_date >= ?`, f.From)
	}
	if !f.To.IsZero() {
		add(`po.order_date <= ?`, f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (t *txRepo) LockSequence(ctx context.Context, key string) error {
	return db.AdvisoryLock(ctx, t.tx, key)
}

func (t *txRepo) NextSequence(ctx context.Context, day time.Time) (int, error) {
	prefix := NumberPrefix + day.Format("20060102") + "-"
	var last int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM $2) AS INT)), 0) FROM purchase_orders WHERE number LIKE $1`,
		prefix+"%", len(prefix)+1).Scan(&last)
	return last + 1, err
}

func (t *txRepo) SupplierName(ctx context.Context, id int64) (string, error) {
	var name string
	err := t.tx.QueryRow(ctx, `SELECT name FROM suppliers WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSupplierNotFound
	}
	return name, err
}

func (t *txRepo) InsertPurchase(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, product_id, supplier_id, quantity, unit, unit_price, description, order_date, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at, updated_at`,
		po.Number, po.ProductID, po.SupplierID, po.Quantity, po.Unit, po.UnitPrice, po.Description, po.OrderDate, po.Status,
	).Scan(&po.ID, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("insert purchase order: %w", err)
	}
	return po, nil
}

func (t *txRepo) GetPurchaseForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanPurchase(t.tx.QueryRow(ctx, purchaseSelect+` WHERE po.id = $1 FOR UPDATE OF po`, id))
}

func (t *txRepo) UpdatePurchase(ctx context.Context, po PurchaseOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET product_id = $1, supplier_id = $2, quantity = $3, unit = $4, unit_price = $5,
	description = $6, received_date = $7, status = $8, updated_at = NOW()
WHERE id = $9`, po.ProductID, po.SupplierID, po.Quantity, po.Unit, po.UnitPrice, po.Description, po.ReceivedDate, po.Status, po.ID)
	if err != nil {
		return fmt.Errorf("update purchase order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

func (t *txRepo) DeletePurchase(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete purchase order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}
