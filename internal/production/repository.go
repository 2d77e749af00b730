package production

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository persists production orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations sharing the ledger's transaction.
type TxRepository interface {
	inventory.LedgerTx

	LockSequence(ctx context.Context, key string) error
	NextSequence(ctx context.Context, day time.Time) (int, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	// UpdateOrder stores the header and replaces the material lines.
	UpdateOrder(ctx context.Context, order Order) error
	DeleteOrder(ctx context.Context, id int64) error
}

type txRepo struct {
	*inventory.TxStore
	tx pgx.Tx
}

// WithTx wraps fn in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: inventory.NewTxStore(tx), tx: tx})
	})
}

const orderSelect = `SELECT o.id, o.number, o.product_id, p.name, o.quantity, o.unit_price, o.status,
	o.start_date, o.planned_end_date, o.end_date, o.notes, o.created_at, o.updated_at
FROM production_orders o
JOIN products p ON p.id = o.product_id`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.ProductID, &o.ProductName, &o.Quantity, &o.UnitPrice, &o.Status,
		&o.StartDate, &o.PlannedEndDate, &o.EndDate, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func loadMaterials(ctx context.Context, q db.Querier, ids ...int64) (map[int64][]Material, error) {
	out := make(map[int64][]Material, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT m.id, m.production_order_id, m.material_id, p.name, m.quantity, m.unit, m.unit_price
FROM production_materials m
JOIN products p ON p.id = m.material_id
WHERE m.production_order_id = ANY($1)
ORDER BY m.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("load production materials: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m       Material
			orderID int64
		)
		if err := rows.Scan(&m.ID, &orderID, &m.MaterialID, &m.MaterialName, &m.Quantity, &m.Unit, &m.UnitPrice); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], m)
	}
	return out, rows.Err()
}

func getOrder(ctx context.Context, q db.Querier, query string, id int64) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		return Order{}, err
	}
	materials, err := loadMaterials(ctx, q, o.ID)
	if err != nil {
		return Order{}, err
	}
	o.Materials = append([]Material{}, materials[o.ID]...)
	return o, nil
}

// GetOrder returns an order with its materials.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.pool, orderSelect+` WHERE o.id = $1`, id)
}

// ListOrders returns one page of orders, newest first, the match count and
// the totals over every match.
func (r *Repository) ListOrders(ctx context.Context, f ListFilter) ([]Order, int, Summary, error) {
	where, args := orderWhere(f)

	var (
		total   int
		summary Summary
	)
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(o.quantity * o.unit_price), 0), COALESCE(SUM(mc.cost), 0)
FROM production_orders o
JOIN products p ON p.id = o.product_id
LEFT JOIN (
	SELECT production_order_id, SUM(quantity * unit_price) AS cost
	FROM production_materials GROUP BY production_order_id
) mc ON mc.production_order_id = o.id`+where, args...).Scan(&total, &summary.ProductValue, &summary.MaterialCost)
	if err != nil {
		return nil, 0, Summary{}, fmt.Errorf("summarize production orders: %w", err)
	}
	summary.Profit = summary.ProductValue.Sub(summary.MaterialCost)

	query := orderSelect + where + ` ORDER BY o.start_date DESC, o.id DESC`
	if f.PerPage > 0 {
		n := len(args)
		query += ` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
		args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, Summary{}, fmt.Errorf("list production orders: %w", err)
	}
	orders := []Order{}
	ids := []int64{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, Summary{}, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, Summary{}, err
	}

	materials, err := loadMaterials(ctx, r.pool, ids...)
	if err != nil {
		return nil, 0, Summary{}, err
	}
	for i := range orders {
		orders[i].Materials = append([]Material{}, materials[orders[i].ID]...)
	}
	return orders, total, summary, nil
}

func orderWhere(f ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.Keyword != "" {
		add(`(o.number ILIKE ? OR p.name ILIKE ?)`, "%"+f.Keyword+"%")
	}
	if f.Status != "" {
		add(`o.status = ?`, f.Status)
	}
	if !f.From.IsZero() {
		add(`o.start_date >= ?`, f.From)
	}
	if !f.To.IsZero() {
		add(`o.start_date <= ?`, f.To)
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
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM $2) AS INT)), 0) FROM production_orders WHERE number LIKE $1`,
		prefix+"%", len(prefix)+1).Scan(&last)
	return last + 1, err
}

func (t *txRepo) insertMaterials(ctx context.Context, orderID int64, materials []Material) error {
	for _, m := range materials {
		if _, err := t.tx.Exec(ctx, `INSERT INTO production_materials (production_order_id, material_id, quantity, unit, unit_price)
VALUES ($1, $2, $3, $4, $5)`, orderID, m.MaterialID, m.Quantity, m.Unit, m.UnitPrice); err != nil {
			return fmt.Errorf("insert production material: %w", err)
		}
	}
	return nil
}

func (t *txRepo) InsertOrder(ctx context.Context, o Order) (Order, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO production_orders (number, product_id, quantity, unit_price, status, start_date, planned_end_date, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, updated_at`,
		o.Number, o.ProductID, o.Quantity, o.UnitPrice, o.Status, o.StartDate, o.PlannedEndDate, o.Notes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("insert production order: %w", err)
	}
	if err := t.insertMaterials(ctx, o.ID, o.Materials); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, t.tx, orderSelect+` WHERE o.id = $1 FOR UPDATE OF o`, id)
}

func (t *txRepo) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := t.tx.Exec(ctx, `UPDATE production_orders SET quantity = $1, unit_price = $2, status = $3, planned_end_date = $4,
	end_date = $5, notes = $6, updated_at = NOW()
WHERE id = $7`, o.Quantity, o.UnitPrice, o.Status, o.PlannedEndDate, o.EndDate, o.Notes, o.ID)
	if err != nil {
		return fmt.Errorf("update production order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM production_materials WHERE production_order_id = $1`, o.ID); err != nil {
		return fmt.Errorf("clear production materials: %w", err)
	}
	return t.insertMaterials(ctx, o.ID, o.Materials)
}

func (t *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM production_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete production order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
