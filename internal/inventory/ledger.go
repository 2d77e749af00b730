package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTx is the transaction-scoped ledger store shared by every module that
// posts stock movements. Implementations must run all calls in one database
// transaction.
type LedgerTx interface {
	// LockProduct loads the product and holds a row lock until the transaction ends.
	LockProduct(ctx context.Context, productID int64) (Product, error)
	// Totals aggregates entries for productID, skipping excludeEntryID when non-zero.
	Totals(ctx context.Context, productID, excludeEntryID int64) (Totals, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	GetEntryForUpdate(ctx context.Context, id int64) (Entry, error)
	UpdateEntry(ctx context.Context, entry Entry) error
	DeleteEntry(ctx context.Context, id int64) error
	EntriesByCause(ctx context.Context, cause Cause) ([]Entry, error)
}

// PostOpening records the immutable base quantity of a new product.
func PostOpening(ctx context.Context, tx LedgerTx, productID int64, quantity decimal.Decimal, at time.Time) (Entry, error) {
	if quantity.IsNegative() {
		return Entry{}, ErrInvalidQuantity
	}
	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return Entry{}, err
	}
	return tx.InsertEntry(ctx, Entry{
		ProductID: product.ID,
		Direction: DirectionOpening,
		Quantity:  quantity,
		Unit:      product.Unit,
		UnitPrice: product.UnitPrice,
		Note:      "Opening balance",
		Cause:     Cause{Kind: CauseOpening, ID: product.ID},
		PostedAt:  stamp(at),
	})
}

// Import appends an IMPORT entry.
func Import(ctx context.Context, tx LedgerTx, in MovementInput) (Entry, error) {
	if err := in.validate(); err != nil {
		return Entry{}, err
	}
	product, err := tx.LockProduct(ctx, in.ProductID)
	if err != nil {
		return Entry{}, err
	}
	return tx.InsertEntry(ctx, in.entry(product, DirectionImport))
}

// Export appends an EXPORT entry after checking stock under the product lock.
func Export(ctx context.Context, tx LedgerTx, in MovementInput) (Entry, error) {
	if err := in.validate(); err != nil {
		return Entry{}, err
	}
	product, _, err := CheckAvailable(ctx, tx, in.ProductID, in.Quantity)
	if err != nil {
		return Entry{}, err
	}
	return tx.InsertEntry(ctx, in.entry(product, DirectionExport))
}

// CheckAvailable locks the product and verifies quantity does not exceed stock.
// It returns the product and its stock before any change.
func CheckAvailable(ctx context.Context, tx LedgerTx, productID int64, quantity decimal.Decimal) (Product, decimal.Decimal, error) {
	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return Product{}, decimal.Zero, err
	}
	totals, err := tx.Totals(ctx, productID, 0)
	if err != nil {
		return Product{}, decimal.Zero, err
	}
	stock := totals.Stock()
	if stock.Sign() <= 0 || quantity.GreaterThan(stock) {
		return product, stock, newStockError(product, quantity, stock)
	}
	return product, stock, nil
}

// CausedEntries returns the entries linked to cause in the given direction.
// An empty direction matches all.
func CausedEntries(ctx context.Context, tx LedgerTx, cause Cause, direction Direction) ([]Entry, error) {
	entries, err := tx.EntriesByCause(ctx, cause)
	if err != nil {
		return nil, err
	}
	if direction == "" {
		return entries, nil
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Direction == direction {
			out = append(out, e)
		}
	}
	return out, nil
}

func (in MovementInput) validate() error {
	if in.ProductID <= 0 {
		return ErrProductNotFound
	}
	if !in.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if in.UnitPrice.Valid && in.UnitPrice.Decimal.IsNegative() {
		return ErrInvalidUnitPrice
	}
	return nil
}

func (in MovementInput) entry(p Product, d Direction) Entry {
	price := p.UnitPrice
	if in.UnitPrice.Valid {
		price = in.UnitPrice.Decimal
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = p.Unit
	}
	cause := in.Cause
	if cause.Kind == "" {
		cause = Manual
	}
	return Entry{
		ProductID:   p.ID,
		ProductName: p.Name,
		SupplierID:  in.SupplierID,
		Direction:   d,
		Quantity:    in.Quantity,
		Unit:        unit,
		UnitPrice:   price,
		Note:        strings.TrimSpace(in.Note),
		Cause:       cause,
		CreatedBy:   in.ActorID,
		PostedAt:    stamp(in.At),
	}
}

func stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}
