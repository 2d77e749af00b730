package customers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	internalShared "github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// TxPort is the transaction-scoped customer store used by order intake.
type TxPort interface {
	// CustomerByUserEmail locks and returns the customer bound to the login.
	CustomerByUserEmail(ctx context.Context, email string) (Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	InsertCustomer(ctx context.Context, customer Customer) (Customer, error)
	UpdateCustomer(ctx context.Context, customer Customer) error
}

// Tx implements TxPort on a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

// NewTx wraps tx.
func NewTx(tx pgx.Tx) *Tx {
	return &Tx{tx: tx}
}

func (s *Tx) CustomerByUserEmail(ctx context.Context, email string) (Customer, error) {
	return scanCustomer(s.tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE user_email = $1 FOR UPDATE`, email))
}

func (s *Tx) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(s.tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (s *Tx) InsertCustomer(ctx context.Context, c Customer) (Customer, error) {
	return insertCustomer(ctx, s.tx, c)
}

func (s *Tx) UpdateCustomer(ctx context.Context, c Customer) error {
	return updateCustomer(ctx, s.tx, c)
}

// FindOrCreateByUserEmail returns the customer bound to the login email,
// creating it from snap when missing. Blank fields of an existing customer
// are filled from snap, populated fields are left alone.
func FindOrCreateByUserEmail(ctx context.Context, tx TxPort, email string, snap Snapshot) (Customer, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Customer{}, internalShared.FieldErrors{"user_email": "is required"}
	}
	existing, err := tx.CustomerByUserEmail(ctx, email)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		created, _ := Customer{UserEmail: email}.FillBlank(snap)
		if created.Email == "" {
			created.Email = email
		}
		return tx.InsertCustomer(ctx, created)
	case err != nil:
		return Customer{}, err
	}
	merged, changed := existing.FillBlank(snap)
	if !changed {
		return existing, nil
	}
	if err := tx.UpdateCustomer(ctx, merged); err != nil {
		return Customer{}, err
	}
	return merged, nil
}
