package sales

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/customers"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// CustomerStatus is the delivery outcome reported on the customer side.
type CustomerStatus string

const (
	CustomerStatusCreated          CustomerStatus = "CREATED"
	CustomerStatusDeliveredSuccess CustomerStatus = "DELIVERED_SUCCESS"
	CustomerStatusDeliveredFailed  CustomerStatus = "DELIVERED_FAILED"
)

// IsValid reports whether s is a known customer status.
func (s CustomerStatus) IsValid() bool {
	switch s {
	case CustomerStatusCreated, CustomerStatusDeliveredSuccess, CustomerStatusDeliveredFailed:
		return true
	}
	return false
}

// WarehouseStatus tracks the order through picking and shipping.
type WarehouseStatus string

const (
	WarehousePending     WarehouseStatus = "PENDING"
	WarehouseProcessing  WarehouseStatus = "PROCESSING"
	WarehouseWaitConfirm WarehouseStatus = "WAIT_CONFIRM"
	WarehousePacking     WarehouseStatus = "PACKING"
	WarehouseDelivering  WarehouseStatus = "DELIVERING"
	WarehouseDelivered   WarehouseStatus = "DELIVERED"
	WarehouseCompleted   WarehouseStatus = "COMPLETED"
	WarehouseFailed      WarehouseStatus = "FAILED"
)

var warehouseRank = map[WarehouseStatus]int{
	WarehousePending:     0,
	WarehouseProcessing:  1,
	WarehouseWaitConfirm: 2,
	WarehousePacking:     3,
	WarehouseDelivering:  4,
	WarehouseDelivered:   5,
	WarehouseCompleted:   6,
}

// IsValid reports whether s is a known warehouse status.
func (s WarehouseStatus) IsValid() bool {
	_, ok := warehouseRank[s]
	return ok || s == WarehouseFailed
}

// IsTerminal reports whether no further warehouse transition is possible.
func (s WarehouseStatus) IsTerminal() bool {
	return s == WarehouseCompleted || s == WarehouseFailed
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "COD"
	PaymentMoMo PaymentMethod = "MOMO"
)

// IsValid reports whether m is a supported payment method.
func (m PaymentMethod) IsValid() bool {
	return m == PaymentCOD || m == PaymentMoMo
}

// NumberPrefix starts every sales order number.
const NumberPrefix = "DH"

// FormatNumber renders DH-yyyyMMdd-NNNN.
func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", NumberPrefix, day.Format("20060102"), seq)
}

// Order is a single-product sales order with a customer contact snapshot.
type Order struct {
	ID              int64              `json:"id"`
	Number          string             `json:"number"`
	ProductID       int64              `json:"product_id"`
	ProductName     string             `json:"product_name,omitempty"`
	CustomerID      int64              `json:"customer_id,omitempty"`
	Customer        customers.Snapshot `json:"customer"`
	Quantity        decimal.Decimal    `json:"quantity"`
	Unit            string             `json:"unit"`
	UnitPrice       decimal.Decimal    `json:"unit_price"`
	Description     string             `json:"description"`
	OrderDate       time.Time          `json:"order_date"`
	DeliveryDate    *time.Time         `json:"delivery_date,omitempty"`
	CustomerStatus  CustomerStatus     `json:"customer_status"`
	WarehouseStatus WarehouseStatus    `json:"warehouse_status"`
	PaymentMethod   PaymentMethod      `json:"payment_method"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`

	// CustomerLogin is the login email bound to the customer record.
	CustomerLogin string `json:"-"`
}

// TotalValue is quantity times unit price.
func (o Order) TotalValue() decimal.Decimal {
	return o.Quantity.Mul(o.UnitPrice)
}

// Cause links ledger entries to the order.
func (o Order) Cause() inventory.Cause {
	return inventory.Cause{Kind: inventory.CauseSalesOrder, ID: o.ID}
}

// ExportNote is the note written on the delivery export.
func (o Order) ExportNote() string {
	return "Export for sales order " + o.Number
}

// OwnedBy reports whether the login email may see the order.
func (o Order) OwnedBy(email string) bool {
	return email != "" && (strings.EqualFold(o.Customer.Email, email) || strings.EqualFold(o.CustomerLogin, email))
}

// CreateInput carries a new order. CustomerID is required for staff.
type CreateInput struct {
	ProductID     int64
	CustomerID    int64
	Quantity      decimal.Decimal
	Unit          string
	UnitPrice     decimal.NullDecimal
	Description   string
	DeliveryDate  *time.Time
	PaymentMethod PaymentMethod
	Customer      customers.Snapshot
}

// UpdateInput carries the customer-facing edit of an order.
type UpdateInput struct {
	ProductID      int64
	Quantity       decimal.Decimal
	Unit           string
	UnitPrice      decimal.NullDecimal
	Description    string
	DeliveryDate   *time.Time
	PaymentMethod  PaymentMethod
	CustomerStatus CustomerStatus
	Customer       customers.Snapshot
}

// ListFilter narrows order listings. CustomerEmail restricts to one customer.
type ListFilter struct {
	Keyword         string
	From            time.Time
	To              time.Time
	CustomerStatus  CustomerStatus
	WarehouseStatus WarehouseStatus
	CustomerEmail   string
	Page            int
	PerPage         int
}

var (
	// ErrOrderNotFound indicates the order does not exist or is not visible to the caller.
	ErrOrderNotFound = fmt.Errorf("sales: order not found: %w", shared.ErrNotFound)
	// ErrCustomerRequired indicates a staff order without a customer.
	ErrCustomerRequired = fmt.Errorf("sales: customer required: %w", shared.ErrValidation)
	// ErrInvalidStatus indicates an unknown status or payment method.
	ErrInvalidStatus = fmt.Errorf("sales: invalid status: %w", shared.ErrValidation)
	// ErrInvalidState indicates a warehouse transition that is not allowed.
	ErrInvalidState = fmt.Errorf("sales: invalid state transition: %w", shared.ErrConflict)
	// ErrOrderLocked indicates a change to an order whose stock has already been exported.
	ErrOrderLocked = fmt.Errorf("sales: order already exported: %w", shared.ErrConflict)
	// ErrOutOfStock re-exports the ledger rejection for callers of this package.
	ErrOutOfStock = inventory.ErrOutOfStock
	// ErrInsufficientStock re-exports the ledger rejection for callers of this package.
	ErrInsufficientStock = inventory.ErrInsufficientStock
)

// IsStockShortage reports whether err rejects an order for lack of stock.
func IsStockShortage(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
