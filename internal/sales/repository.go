package sales

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
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/customers"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for sales orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Ledger and customer writes
// share the order's transaction.
type TxRepository interface {
	inventory.LedgerTx
	customers.TxPort

	// LockSequence serializes number generation for key until commit.
	LockSequence(ctx context.Context, key string) error
	// NextSequence returns the next free daily sequence for day.
	NextSequence(ctx context.Context, day time.Time) (int, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, order Order) error
	DeleteOrder(ctx context.Context, id int64) error
}

type txRepo struct {
	*inventory.TxStore
	*customers.Tx
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: inventory.NewTxStore(tx), Tx: customers.NewTx(tx), tx: tx})
	})
}

const orderSelect = `SELECT o.id, o.number, o.product_id, p.name, COALESCE(o.customer_id, 0),
	o.customer_name, o.customer_address, o.customer_phone, o.customer_email,
	o.quantity, o.unit, o.unit_price, o.description, o.order_date, o.delivery_date,
	o.customer_status, o.warehouse_status, o.payment_method, o.created_at, o.updated_at,
	COALESCE(c.user_email, '')
FROM sales_orders o
JOIN products p ON p.id = o.product_id
LEFT JOIN customers c ON c.id = o.customer_id`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.ProductID, &o.ProductName, &o.CustomerID,
		&o.Customer.Name, &o.Customer.Address, &o.Customer.Phone, &o.Customer.Email,
		&o.Quantity, &o.Unit, &o.UnitPrice, &o.Description, &o.OrderDate, &o.DeliveryDate,
		&o.CustomerStatus, &o.WarehouseStatus, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt,
		&o.CustomerLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

// GetOrder returns an order by id.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id))
}

// ListOrders returns one page of orders, newest first, and the total match count.
func (r *Repository) ListOrders(ctx context.Context, f ListFilter) ([]Order, int, error) {
	where, args := orderWhere(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM sales_orders o JOIN products p ON p.id = o.product_id LEFT JOIN customers c ON c.id = o.customer_id` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales orders: %w", err)
	}

	query := orderSelect + where + ` ORDER BY o.order_date DESC, o.id DESC`
	if f.PerPage > 0 {
		n := len(args)
		query += ` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
		args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
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
		add(`(o.number ILIKE ? OR p.name ILIKE ? OR o.customer_name ILIKE ?)`, "%"+f.Keyword+"%")
	}
	if !f.From.IsZero() {
		add(`o.order_date >= ?`, f.From)
	}
	if !f.To.IsZero() {
		add(`o.order_date <= ?`, f.To)
	}
	if f.CustomerStatus != "" {
		add(`o.customer_status = ?`, f.CustomerStatus)
	}
	if f.WarehouseStatus != "" {
		add(`o.warehouse_status = ?`, f.WarehouseStatus)
	}
	if f.CustomerEmail != "" {
		add(`(LOWER(o.customer_email) = ? OR c.user_email = ?)`, f.CustomerEmail)
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
	prefix := FormatNumber(day, 0)
	prefix = prefix[:len(prefix)-4]
	var last int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM $2) AS INT)), 0) FROM sales_orders WHERE number LIKE $1`,
		prefix+"%", len(prefix)+1).Scan(&last)
	return last + 1, err
}

func (t *txRepo) InsertOrder(ctx context.Context, o Order) (Order, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO sales_orders (number, product_id, customer_id, customer_name, customer_address, customer_phone, customer_email,
	quantity, unit, unit_price, description, order_date, delivery_date, customer_status, warehouse_status, payment_method)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id, created_at, updated_at`,
		o.Number, o.ProductID, db.NullInt(o.CustomerID), o.Customer.Name, o.Customer.Address, o.Customer.Phone, o.Customer.Email,
		o.Quantity, o.Unit, o.UnitPrice, o.Description, o.OrderDate, o.DeliveryDate, o.CustomerStatus, o.WarehouseStatus, o.PaymentMethod,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("insert sales order: %w", err)
	}
	return o, nil
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, orderSelect+` WHERE o.id = $1 FOR UPDATE OF o`, id))
}

func (t *txRepo) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_orders SET product_id = $1, customer_name = $2, customer_address = $3, customer_phone = $4, customer_email = $5,
	quantity = $6, unit = $7, unit_price = $8, description = $9, delivery_date = $10, customer_status = $11, warehouse_status = $12,
	payment_method = $13, updated_at = NOW()
WHERE id = $14`,
		o.ProductID, o.Customer.Name, o.Customer.Address, o.Customer.Phone, o.Customer.Email,
		o.Quantity, o.Unit, o.UnitPrice, o.Description, o.DeliveryDate, o.CustomerStatus, o.WarehouseStatus,
		o.PaymentMethod, o.ID)
	if err != nil {
		return fmt.Errorf("update sales order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sales order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
