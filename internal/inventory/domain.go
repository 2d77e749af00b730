package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Direction enumerates ledger entry directions.
type Direction string

const (
	// DirectionOpening is the immutable base quantity recorded when a product is created.
	DirectionOpening Direction = "OPENING"
	// DirectionImport increases stock.
	DirectionImport Direction = "IMPORT"
	// DirectionExport decreases stock.
	DirectionExport Direction = "EXPORT"
)

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	switch d {
	case DirectionOpening, DirectionImport, DirectionExport:
		return true
	}
	return false
}

// CauseKind names what produced a ledger entry.
type CauseKind string

const (
	CauseOpening         CauseKind = "OPENING"
	CauseManual          CauseKind = "MANUAL"
	CauseSalesOrder      CauseKind = "SALES_ORDER"
	CauseProductionOrder CauseKind = "PRODUCTION_ORDER"
	CausePurchaseOrder   CauseKind = "PURCHASE_ORDER"
)

// Cause links an entry to the document that produced it.
type Cause struct {
	Kind CauseKind `json:"kind"`
	ID   int64     `json:"id,omitempty"`
}

// Manual is the cause of entries posted directly by staff.
var Manual = Cause{Kind: CauseManual}

// ProductType classifies catalog items.
type ProductType string

const (
	ProductTypeFinishedGood ProductType = "FINISHED_GOOD"
	ProductTypeMaterial     ProductType = "MATERIAL"
)

// IsValid reports whether t is a known product type.
func (t ProductType) IsValid() bool {
	return t == ProductTypeFinishedGood || t == ProductTypeMaterial
}

// Product is the ledger's view of a catalog item.
type Product struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      ProductType     `json:"type"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Entry is one immutable-by-default ledger row.
type Entry struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	SupplierID  int64           `json:"supplier_id,omitempty"`
	Direction   Direction       `json:"direction"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Note        string          `json:"note"`
	Cause       Cause           `json:"cause"`
	CreatedBy   int64           `json:"created_by,omitempty"`
	PostedAt    time.Time       `json:"posted_at"`
}

// TotalValue is quantity times the entry's own unit price.
func (e Entry) TotalValue() decimal.Decimal {
	return e.Quantity.Mul(e.UnitPrice)
}

// Totals aggregates ledger quantities for one product.
type Totals struct {
	Opening  decimal.Decimal `json:"opening"`
	Imported decimal.Decimal `json:"imported"`
	Exported decimal.Decimal `json:"exported"`
}

// Add folds an entry into the totals.
func (t Totals) Add(e Entry) Totals {
	switch e.Direction {
	case DirectionOpening:
		t.Opening = t.Opening.Add(e.Quantity)
	case DirectionImport:
		t.Imported = t.Imported.Add(e.Quantity)
	case DirectionExport:
		t.Exported = t.Exported.Add(e.Quantity)
	}
	return t
}

// Valuation is the derived stock position of a product.
type Valuation struct {
	ProductID   int64           `json:"product_id"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	ProductType ProductType     `json:"product_type"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Opening     decimal.Decimal `json:"opening"`
	Imported    decimal.Decimal `json:"imported"`
	Exported    decimal.Decimal `json:"exported"`
	Stock       decimal.Decimal `json:"stock"`
	ImportValue decimal.Decimal `json:"import_value"`
	ExportValue decimal.Decimal `json:"export_value"`
	StockValue  decimal.Decimal `json:"stock_value"`
}

// ProductTotals pairs a product with its ledger totals.
type ProductTotals struct {
	Product Product
	Totals  Totals
}

// InventoryReport is the valued catalog with grand totals.
type InventoryReport struct {
	Items            []Valuation     `json:"items"`
	TotalImportValue decimal.Decimal `json:"total_import_value"`
	TotalExportValue decimal.Decimal `json:"total_export_value"`
	TotalStockValue  decimal.Decimal `json:"total_stock_value"`
}

// ValuationFilter narrows the valued catalog.
type ValuationFilter struct {
	Type    ProductType
	Keyword string
}

// MovementInput describes an import or export posting.
type MovementInput struct {
	ProductID  int64
	SupplierID int64
	Quantity   decimal.Decimal
	// UnitPrice defaults to the product's current price when not valid.
	UnitPrice decimal.NullDecimal
	Unit      string
	Note      string
	Cause     Cause
	ActorID   int64
	At        time.Time
}

// RevisionInput describes an edit of an existing entry.
type RevisionInput struct {
	Quantity decimal.Decimal
	// UnitPrice keeps the stored price when not valid.
	UnitPrice decimal.NullDecimal
	// Note keeps the stored note when blank.
	Note    string
	ActorID int64
	At      time.Time
}

// EntryFilter narrows ledger listings. To is inclusive.
type EntryFilter struct {
	Direction Direction
	ProductID int64
	Keyword   string
	Cause     *Cause
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

var (
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = fmt.Errorf("inventory: product not found: %w", shared.ErrNotFound)
	// ErrEntryNotFound indicates the ledger entry does not exist.
	ErrEntryNotFound = fmt.Errorf("inventory: entry not found: %w", shared.ErrNotFound)
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidUnitPrice indicates a negative price.
	ErrInvalidUnitPrice = fmt.Errorf("inventory: unit price must not be negative: %w", shared.ErrValidation)
	// ErrInsufficientStock indicates an export larger than current stock.
	ErrInsufficientStock = fmt.Errorf("inventory: insufficient stock: %w", shared.ErrValidation)
	// ErrOutOfStock indicates a product with no stock at all. It matches ErrInsufficientStock.
	ErrOutOfStock = fmt.Errorf("inventory: out of stock: %w", ErrInsufficientStock)
	// ErrNegativeStock indicates a change that would leave stock below zero.
	ErrNegativeStock = fmt.Errorf("inventory: change would leave stock negative: %w", shared.ErrValidation)
	// ErrOpeningImmutable indicates an attempt to edit or delete an opening entry.
	ErrOpeningImmutable = fmt.Errorf("inventory: opening entry cannot be changed: %w", shared.ErrConflict)
	// ErrNoteRequired indicates a manual movement without a note.
	ErrNoteRequired = fmt.Errorf("inventory: note required: %w", shared.ErrValidation)
	// ErrInvalidDirection indicates an unknown direction.
	ErrInvalidDirection = fmt.Errorf("inventory: invalid direction: %w", shared.ErrValidation)
)

// StockError reports the figures behind an insufficient-stock rejection.
type StockError struct {
	ProductID   int64
	ProductName string
	Requested   decimal.Decimal
	Available   decimal.Decimal
	err         error
}

func newStockError(p Product, requested, available decimal.Decimal) *StockError {
	base := ErrInsufficientStock
	if available.Sign() <= 0 {
		base = ErrOutOfStock
	}
	return &StockError{ProductID: p.ID, ProductName: p.Name, Requested: requested, Available: available, err: base}
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s: %q requested %s, available %s", e.err.Error(), e.ProductName, e.Requested.String(), e.Available.String())
}

func (e *StockError) Unwrap() error {
	return e.err
}

// IsStockShortage reports whether err is an out-of-stock or insufficient-stock rejection.
func IsStockShortage(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
