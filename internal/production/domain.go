package production

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Status enumerates production order states.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// NumberPrefix starts every production order number.
const NumberPrefix = "SX"

// FormatNumber renders SX<yyyyMMdd>-NNN.
func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s%s-%03d", NumberPrefix, day.Format("20060102"), seq)
}

// Material is one planned input line of a production order.
type Material struct {
	ID           int64           `json:"id"`
	MaterialID   int64           `json:"material_id"`
	MaterialName string          `json:"material_name,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// Cost is quantity times the line price.
func (m Material) Cost() decimal.Decimal {
	return m.Quantity.Mul(m.UnitPrice)
}

// Order turns materials into a quantity of one finished good.
type Order struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Status         Status          `json:"status"`
	StartDate      time.Time       `json:"start_date"`
	PlannedEndDate *time.Time      `json:"planned_end_date,omitempty"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	Notes          string          `json:"notes"`
	Materials      []Material      `json:"materials"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TotalValue is the value of the produced goods.
func (o Order) TotalValue() decimal.Decimal {
	return o.Quantity.Mul(o.UnitPrice)
}

// MaterialCost sums the material lines.
func (o Order) MaterialCost() decimal.Decimal {
	total := decimal.Zero
	for _, m := range o.Materials {
		total = total.Add(m.Cost())
	}
	return total
}

// Profit is total value minus material cost.
func (o Order) Profit() decimal.Decimal {
	return o.TotalValue().Sub(o.MaterialCost())
}

// Cause links ledger entries to the order.
func (o Order) Cause() inventory.Cause {
	return inventory.Cause{Kind: inventory.CauseProductionOrder, ID: o.ID}
}

func (o Order) importNote() string {
	return "Production completed " + o.Number
}

func (o Order) exportNote() string {
	return "Material consumed for production " + o.Number
}

// MaterialInput is a requested material line. Unit and price default to the material's.
type MaterialInput struct {
	MaterialID int64
	Quantity   decimal.Decimal
	Unit       string
	UnitPrice  decimal.NullDecimal
}

// CreateInput carries a new production order.
type CreateInput struct {
	ProductID      int64
	Quantity       decimal.Decimal
	UnitPrice      decimal.NullDecimal
	PlannedEndDate *time.Time
	Notes          string
	Materials      []MaterialInput
}

// UpdateInput replaces the editable fields and the material lines. The output
// product is fixed at creation.
type UpdateInput struct {
	Quantity       decimal.Decimal
	UnitPrice      decimal.NullDecimal
	Status         Status
	PlannedEndDate *time.Time
	Notes          string
	Materials      []MaterialInput
}

// ListFilter narrows production listings.
type ListFilter struct {
	Keyword string
	Status  Status
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

// Summary totals a list of orders.
type Summary struct {
	ProductValue decimal.Decimal `json:"product_value"`
	MaterialCost decimal.Decimal `json:"material_cost"`
	Profit       decimal.Decimal `json:"profit"`
}

// Summarize totals orders in memory.
func Summarize(orders []Order) Summary {
	var s Summary
	for _, o := range orders {
		s.ProductValue = s.ProductValue.Add(o.TotalValue())
		s.MaterialCost = s.MaterialCost.Add(o.MaterialCost())
	}
	s.Profit = s.ProductValue.Sub(s.MaterialCost)
	return s
}

var (
	// ErrOrderNotFound indicates the production order does not exist.
	ErrOrderNotFound = fmt.Errorf("production: order not found: %w", shared.ErrNotFound)
	// ErrInvalidStatus indicates an unknown status.
	ErrInvalidStatus = fmt.Errorf("production: invalid status: %w", shared.ErrValidation)
	// ErrInvalidState indicates leaving DONE.
	ErrInvalidState = fmt.Errorf("production: invalid state transition: %w", shared.ErrConflict)
	// ErrOrderLocked indicates a change to the quantities of a completed order.
	ErrOrderLocked = fmt.Errorf("production: completed order cannot change: %w", shared.ErrConflict)
	// ErrNotFinishedGood indicates an output product that is not a finished good.
	ErrNotFinishedGood = fmt.Errorf("production: output must be a finished good: %w", shared.ErrValidation)
	// ErrNotMaterial indicates a material line referencing a non-material product.
	ErrNotMaterial = fmt.Errorf("production: line must reference a material: %w", shared.ErrValidation)
)
