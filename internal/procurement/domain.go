package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Status enumerates purchase order states.
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusOrdered  Status = "ORDERED"
	StatusReceived Status = "RECEIVED"
	StatusCanceled Status = "CANCELED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusOrdered, StatusReceived, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether the purchase is closed.
func (s Status) IsTerminal() bool {
	return s == StatusReceived || s == StatusCanceled
}

// NumberPrefix starts every purchase order number.
const NumberPrefix = "PO"

// FormatNumber renders PO<yyyyMMdd>-NNN.
func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s%s-%03d", NumberPrefix, day.Format("20060102"), seq)
}

// PurchaseOrder buys a quantity of one material from one supplier.
type PurchaseOrder struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name,omitempty"`
	SupplierID   int64           `json:"supplier_id"`
	SupplierName string          `json:"supplier_name,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Description  string          `json:"description"`
	OrderDate    time.Time       `json:"order_date"`
	ReceivedDate *time.Time      `json:"received_date,omitempty"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TotalValue is quantity times unit price.
func (po PurchaseOrder) TotalValue() decimal.Decimal {
	return po.Quantity.Mul(po.UnitPrice)
}

// Cause links the receipt import to the purchase.
func (po PurchaseOrder) Cause() inventory.Cause {
	return inventory.Cause{Kind: inventory.CausePurchaseOrder, ID: po.ID}
}

func (po PurchaseOrder) importNote() string {
	return "Import from purchase order " + po.Number
}

// CreateInput carries a new purchase order.
type CreateInput struct {
	ProductID   int64
	SupplierID  int64
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.NullDecimal
	Description string
}

// UpdateInput carries a purchase edit including its status.
type UpdateInput struct {
	ProductID   int64
	SupplierID  int64
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.NullDecimal
	Description string
	Status      Status
}

// ListFilter narrows purchase listings by order date.
type ListFilter struct {
	Keyword string
	Status  Status
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

var (
	// ErrPurchaseNotFound indicates the purchase order does not exist.
	ErrPurchaseNotFound = fmt.Errorf("procurement: purchase order not found: %w", shared.ErrNotFound)
	// ErrSupplierNotFound indicates an unknown supplier.
	ErrSupplierNotFound = fmt.Errorf("procurement: supplier not found: %w", shared.ErrValidation)
	// ErrSupplierRequired indicates a purchase without supplier.
	ErrSupplierRequired = fmt.Errorf("procurement: supplier required: %w", shared.ErrValidation)
	// ErrNotMaterial indicates a purchase of a finished good.
	ErrNotMaterial = fmt.Errorf("procurement: only materials can be purchased: %w", shared.ErrValidation)
	// ErrInvalidStatus indicates an unknown status.
	ErrInvalidStatus = fmt.Errorf("procurement: invalid status: %w", shared.ErrValidation)
	// ErrInvalidState indicates a change to a received or canceled purchase.
	ErrInvalidState = fmt.Errorf("procurement: invalid state transition: %w", shared.ErrConflict)
)
