package sales

import (
	"fmt"
	"time"
)

// CanMoveTo checks a staff warehouse transition. Statuses move forward only,
// skipping steps is allowed, FAILED is reachable from any open status, and
// COMPLETED and FAILED are final. Re-saving the current status is a no-op.
func (s WarehouseStatus) CanMoveTo(next WarehouseStatus) error {
	if !next.IsValid() {
		return fmt.Errorf("warehouse status %q: %w", next, ErrInvalidStatus)
	}
	if s == next {
		return nil
	}
	if s.IsTerminal() {
		return fmt.Errorf("order is %s: %w", s, ErrInvalidState)
	}
	if next == WarehouseFailed {
		return nil
	}
	if warehouseRank[next] < warehouseRank[s] {
		return fmt.Errorf("%s -> %s: %w", s, next, ErrInvalidState)
	}
	return nil
}

// stampsDelivery reports whether reaching s records the delivery date.
func (s WarehouseStatus) stampsDelivery() bool {
	return s == WarehouseDelivered || s == WarehouseCompleted
}

func stampDelivery(o *Order, now time.Time) {
	if o.DeliveryDate == nil {
		t := now.UTC()
		o.DeliveryDate = &t
	}
}

// needsExport reports whether moving the order to the customer status next
// must post the delivery export.
func needsExport(o Order, next CustomerStatus, exported bool) bool {
	return next == CustomerStatusDeliveredSuccess && o.WarehouseStatus != WarehouseDelivered && !exported
}
