package products

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

// Product represents a catalog item. Opening and Stock are read from the ledger.
type Product struct {
	ID          int64                 `json:"id"`
	Code        string                `json:"code"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Type        inventory.ProductType `json:"type"`
	Unit        string                `json:"unit"`
	Location    string                `json:"location"`
	UnitPrice   decimal.Decimal       `json:"unit_price"`
	Opening     decimal.Decimal       `json:"opening_quantity"`
	Stock       decimal.Decimal       `json:"stock"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Ledger returns the fields the inventory ledger works with.
func (p Product) Ledger() inventory.Product {
	return inventory.Product{ID: p.ID, Code: p.Code, Name: p.Name, Type: p.Type, Unit: p.Unit, UnitPrice: p.UnitPrice}
}
