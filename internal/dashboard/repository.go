package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/sales"
)

// Repository reads dashboard aggregates from PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	ledger *inventory.Repository
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, ledger: inventory.NewRepository(pool)}
}

var delivered = string(sales.CustomerStatusDeliveredSuccess)

// Stats returns the headline counters except the low stock count.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `SELECT
	(SELECT COUNT(*) FROM products),
	(SELECT COUNT(*) FROM production_orders),
	(SELECT COUNT(*) FROM sales_orders),
	(SELECT COUNT(*) FROM purchase_orders),
	(SELECT COUNT(*) FROM suppliers),
	(SELECT COALESCE(SUM(quantity * unit_price), 0) FROM sales_orders WHERE customer_status = $1)`, delivered).
		Scan(&s.Products, &s.ProductionOrders, &s.SalesOrders, &s.PurchaseOrders, &s.Suppliers, &s.TotalRevenue)
	if err != nil {
		return Stats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return s, nil
}

// ProductTotals returns the ledger totals of every product.
func (r *Repository) ProductTotals(ctx context.Context) ([]inventory.ProductTotals, error) {
	return r.ledger.ProductTotals(ctx, inventory.ValuationFilter{})
}

// MonthlyRevenue sums delivered revenue per month of year.
func (r *Repository) MonthlyRevenue(ctx context.Context, year int) ([]MonthAmount, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows, err := r.pool.Query(ctx, `SELECT EXTRACT(MONTH FROM order_date)::int, SUM(quantity * unit_price)
FROM sales_orders
WHERE customer_status = $1 AND order_date >= $2 AND order_date < $3
GROUP BY 1
ORDER BY 1`, delivered, start, start.AddDate(1, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("monthly revenue: %w", err)
	}
	defer rows.Close()
	out := []MonthAmount{}
	for rows.Next() {
		var (
			month  int
			amount decimal.Decimal
		)
		if err := rows.Scan(&month, &amount); err != nil {
			return nil, err
		}
		out = append(out, MonthAmount{Month: time.Month(month), Amount: amount})
	}
	return out, rows.Err()
}

// Movements returns import and export totals per day and product. A zero
// productID covers every product.
func (r *Repository) Movements(ctx context.Context, productID int64, from, to time.Time) ([]MovementRow, error) {
	query := `SELECT e.posted_at::date, e.direction, p.name, p.unit, SUM(e.quantity), SUM(e.quantity) * p.unit_price
FROM inventory_entries e
JOIN products p ON p.id = e.product_id
WHERE e.direction IN ('IMPORT', 'EXPORT')`
	var args []any
	if productID > 0 {
		args = append(args, productID)
		query += ` AND e.product_id = $` + strconv.Itoa(len(args))
	}
	if !from.IsZero() {
		args = append(args, from)
		query += ` AND e.posted_at >= $` + strconv.Itoa(len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += ` AND e.posted_at <= $` + strconv.Itoa(len(args))
	}
	query += ` GROUP BY 1, 2, p.id, p.name, p.unit, p.unit_price ORDER BY 1, p.name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("movements: %w", err)
	}
	defer rows.Close()
	out := []MovementRow{}
	for rows.Next() {
		var m MovementRow
		if err := rows.Scan(&m.Day, &m.Direction, &m.ProductName, &m.Unit, &m.Quantity, &m.Value); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MatchProduct returns the first product whose name contains keyword.
func (r *Repository) MatchProduct(ctx context.Context, keyword string) (inventory.Product, bool, error) {
	var p inventory.Product
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, product_type, unit, unit_price
FROM products WHERE name ILIKE '%' || $1 || '%' ORDER BY id LIMIT 1`, keyword).
		Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.Unit, &p.UnitPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Product{}, false, nil
	}
	if err != nil {
		return inventory.Product{}, false, fmt.Errorf("match product: %w", err)
	}
	return p, true, nil
}

// DailyRevenue sums delivered revenue of one product per order day.
func (r *Repository) DailyRevenue(ctx context.Context, productID int64) ([]DayAmount, error) {
	return r.dayAmounts(ctx, `SELECT order_date::date, SUM(quantity * unit_price)
FROM sales_orders
WHERE product_id = $1 AND customer_status = $2
GROUP BY 1
ORDER BY 1`, productID, delivered)
}

// DailyUsage values the exports of one product per day at its current price.
func (r *Repository) DailyUsage(ctx context.Context, productID int64) ([]DayAmount, error) {
	return r.dayAmounts(ctx, `SELECT e.posted_at::date, SUM(e.quantity) * p.unit_price
FROM inventory_entries e
JOIN products p ON p.id = e.product_id
WHERE e.product_id = $1 AND e.direction = 'EXPORT'
GROUP BY 1, p.unit_price
ORDER BY 1`, productID)
}

func (r *Repository) dayAmounts(ctx context.Context, query string, args ...any) ([]DayAmount, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("daily amounts: %w", err)
	}
	defer rows.Close()
	out := []DayAmount{}
	for rows.Next() {
		var (
			day    time.Time
			amount decimal.Decimal
		)
		if err := rows.Scan(&day, &amount); err != nil {
			return nil, err
		}
		out = append(out, DayAmount{Day: day.Format(dayLayout), Amount: amount})
	}
	return out, rows.Err()
}
