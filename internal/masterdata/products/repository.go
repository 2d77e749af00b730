package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository runs catalog writes in the same transaction as the ledger.
type TxRepository interface {
	inventory.LedgerTx
	InsertProduct(ctx context.Context, product Product) (Product, error)
	UpdateProduct(ctx context.Context, product Product) error
	// CountMovements counts every non-opening ledger entry of the product.
	CountMovements(ctx context.Context, productID int64) (int, error)
	// DeleteProduct removes the product together with its opening entry.
	DeleteProduct(ctx context.Context, productID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

type txRepository struct {
	*inventory.TxStore
	tx pgx.Tx
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxStore: inventory.NewTxStore(tx), tx: tx})
	})
}

const productSelect = `SELECT p.id, p.code, p.name, p.description, p.product_type, p.unit, p.location, p.unit_price,
	COALESCE(t.opening, 0), COALESCE(t.opening, 0) + COALESCE(t.imported, 0) - COALESCE(t.exported, 0),
	p.created_at, p.updated_at
FROM products p
LEFT JOIN (
	SELECT product_id,
		SUM(quantity) FILTER (WHERE direction = 'OPENING') AS opening,
		SUM(quantity) FILTER (WHERE direction = 'IMPORT') AS imported,
		SUM(quantity) FILTER (WHERE direction = 'EXPORT') AS exported
	FROM inventory_entries GROUP BY product_id
) t ON t.product_id = p.id`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Type, &p.Unit, &p.Location, &p.UnitPrice, &p.Opening, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Type != "" {
		argCount++
		where += ` AND p.product_type = $` + strconv.Itoa(argCount)
		args = append(args, filters.Type)
	}
	if filters.Search != "" {
		argCount++
		where += ` AND (p.name ILIKE $` + strconv.Itoa(argCount) + ` OR p.code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products p`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := productSelect + where + " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(argCount+1) + ` OFFSET $` + strconv.Itoa(argCount+2)
		args = append(args, filters.Limit, filters.Offset())
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, productSelect+` WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *txRepository) InsertProduct(ctx context.Context, p Product) (Product, error) {
	now := time.Now().UTC()
	err := r.tx.QueryRow(ctx, `INSERT INTO products (code, name, description, product_type, unit, location, unit_price, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
		p.Code, p.Name, p.Description, p.Type, p.Unit, p.Location, p.UnitPrice, now).Scan(&p.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Product{}, fmt.Errorf("product code %q: %w", p.Code, shared.ErrDuplicate)
		}
		return Product{}, err
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return p, nil
}

func (r *txRepository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET code = $1, name = $2, description = $3, product_type = $4, unit = $5, location = $6, unit_price = $7, updated_at = NOW() WHERE id = $8`,
		p.Code, p.Name, p.Description, p.Type, p.Unit, p.Location, p.UnitPrice, p.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("product code %q: %w", p.Code, shared.ErrDuplicate)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) CountMovements(ctx context.Context, productID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_entries WHERE product_id = $1 AND direction <> 'OPENING'`, productID).Scan(&n)
	return n, err
}

func (r *txRepository) DeleteProduct(ctx context.Context, productID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM inventory_entries WHERE product_id = $1 AND direction = 'OPENING'`, productID); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "p.code " + dir
	case "price":
		return "p.unit_price " + dir
	case "created_at":
		return "p.created_at " + dir
	default:
		return "p.name " + dir
	}
}
