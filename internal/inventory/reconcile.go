package inventory

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Revise edits the quantity, price or note of an import or export entry.
// The stock formula is evaluated with the entry excluded, then with the new
// quantity applied; an export may not exceed the remaining stock and an
// import may not leave stock negative.
func Revise(ctx context.Context, tx LedgerTx, id int64, in RevisionInput) (before, after Entry, err error) {
	if !in.Quantity.IsPositive() {
		return Entry{}, Entry{}, ErrInvalidQuantity
	}
	if in.UnitPrice.Valid && in.UnitPrice.Decimal.IsNegative() {
		return Entry{}, Entry{}, ErrInvalidUnitPrice
	}
	before, err = tx.GetEntryForUpdate(ctx, id)
	if err != nil {
		return Entry{}, Entry{}, err
	}
	if before.Direction == DirectionOpening {
		return Entry{}, Entry{}, ErrOpeningImmutable
	}
	product, err := tx.LockProduct(ctx, before.ProductID)
	if err != nil {
		return Entry{}, Entry{}, err
	}
	rest, err := tx.Totals(ctx, before.ProductID, before.ID)
	if err != nil {
		return Entry{}, Entry{}, err
	}
	stockExcl := rest.Stock()
	switch before.Direction {
	case DirectionExport:
		if in.Quantity.GreaterThan(stockExcl) {
			return Entry{}, Entry{}, newStockError(product, in.Quantity, stockExcl)
		}
	case DirectionImport:
		if stockExcl.Add(in.Quantity).IsNegative() {
			return Entry{}, Entry{}, ErrNegativeStock
		}
	}

	after = before
	after.Quantity = in.Quantity
	if in.UnitPrice.Valid {
		after.UnitPrice = in.UnitPrice.Decimal
	}
	if note := strings.TrimSpace(in.Note); note != "" {
		after.Note = note
	}
	after.PostedAt = stamp(in.At)
	if err := tx.UpdateEntry(ctx, after); err != nil {
		return Entry{}, Entry{}, err
	}
	return before, after, nil
}

// Remove deletes an import or export entry. Removing the row restores the
// theoretical stock opening + imports − exports computed without it. An
// import whose removal would leave stock negative is rejected.
func Remove(ctx context.Context, tx LedgerTx, id int64) (Entry, error) {
	entry, err := tx.GetEntryForUpdate(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if entry.Direction == DirectionOpening {
		return Entry{}, ErrOpeningImmutable
	}
	if _, err := tx.LockProduct(ctx, entry.ProductID); err != nil {
		return Entry{}, err
	}
	if entry.Direction == DirectionImport {
		rest, err := tx.Totals(ctx, entry.ProductID, entry.ID)
		if err != nil {
			return Entry{}, err
		}
		if rest.Stock().IsNegative() {
			return Entry{}, ErrNegativeStock
		}
	}
	if err := tx.DeleteEntry(ctx, entry.ID); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// RemoveCaused deletes every entry linked to cause. Products whose stock goes
// down as a result must not end below zero.
func RemoveCaused(ctx context.Context, tx LedgerTx, cause Cause) ([]Entry, error) {
	entries, err := tx.EntriesByCause(ctx, cause)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	delta := map[int64]decimal.Decimal{}
	order := []int64{}
	for _, e := range entries {
		if e.Direction == DirectionOpening {
			return nil, ErrOpeningImmutable
		}
		if _, seen := delta[e.ProductID]; !seen {
			order = append(order, e.ProductID)
		}
		switch e.Direction {
		case DirectionImport:
			delta[e.ProductID] = delta[e.ProductID].Sub(e.Quantity)
		case DirectionExport:
			delta[e.ProductID] = delta[e.ProductID].Add(e.Quantity)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	for _, productID := range order {
		if _, err := tx.LockProduct(ctx, productID); err != nil {
			return nil, err
		}
		if !delta[productID].IsNegative() {
			continue
		}
		totals, err := tx.Totals(ctx, productID, 0)
		if err != nil {
			return nil, err
		}
		if totals.Stock().Add(delta[productID]).IsNegative() {
			return nil, ErrNegativeStock
		}
	}
	for _, e := range entries {
		if err := tx.DeleteEntry(ctx, e.ID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
