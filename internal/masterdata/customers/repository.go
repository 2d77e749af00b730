package customers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error)
	Get(ctx context.Context, id int64) (Customer, error)
	Create(ctx context.Context, customer Customer) (Customer, error)
	Update(ctx context.Context, customer Customer) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const customerColumns = `id, name, address, phone, email, COALESCE(user_email, ''), created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Phone, &c.Email, &c.UserEmail, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		where += ` AND (name ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1)`
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	dir := "ASC"
	if filters.SortDir == shared.SortDesc {
		dir = "DESC"
	}
	query := `SELECT ` + customerColumns + ` FROM customers` + where + ` ORDER BY name ` + dir + `, id`
	if filters.Limit > 0 {
		n := len(args)
		query += ` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
		args = append(args, filters.Limit, filters.Offset())
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, c Customer) (Customer, error) {
	return insertCustomer(ctx, r.db, c)
}

func (r *repository) Update(ctx context.Context, c Customer) error {
	return updateCustomer(ctx, r.db, c)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
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

func insertCustomer(ctx context.Context, q db.Querier, c Customer) (Customer, error) {
	saved, err := scanCustomer(q.QueryRow(ctx, `INSERT INTO customers (name, address, phone, email, user_email)
VALUES ($1, $2, $3, $4, $5) RETURNING `+customerColumns,
		c.Name, c.Address, c.Phone, c.Email, db.NullString(c.UserEmail)))
	if err != nil && db.IsUniqueViolation(err) {
		return Customer{}, fmt.Errorf("customer login %q: %w", c.UserEmail, shared.ErrDuplicate)
	}
	return saved, err
}

func updateCustomer(ctx context.Context, q db.Querier, c Customer) error {
	tag, err := q.Exec(ctx, `UPDATE customers SET name = $1, address = $2, phone = $3, email = $4, user_email = $5, updated_at = NOW() WHERE id = $6`,
		c.Name, c.Address, c.Phone, c.Email, db.NullString(c.UserEmail), c.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("customer login %q: %w", c.UserEmail, shared.ErrDuplicate)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
