package products

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

// ProductForm is the create and update payload. OpeningQuantity is only read on create.
type ProductForm struct {
	Code            string           `json:"code" validate:"required,max=64"`
	Name            string           `json:"name" validate:"required,max=200"`
	Description     string           `json:"description" validate:"max=2000"`
	Type            string           `json:"type" validate:"required,oneof=FINISHED_GOOD MATERIAL"`
	Unit            string           `json:"unit" validate:"max=32"`
	Location        string           `json:"location" validate:"max=200"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	OpeningQuantity *decimal.Decimal `json:"opening_quantity,omitempty"`
}

func (f ProductForm) product() Product {
	return Product{
		Code:        strings.TrimSpace(f.Code),
		Name:        strings.TrimSpace(f.Name),
		Description: strings.TrimSpace(f.Description),
		Type:        inventory.ProductType(f.Type),
		Unit:        strings.TrimSpace(f.Unit),
		Location:    strings.TrimSpace(f.Location),
		UnitPrice:   f.UnitPrice,
	}
}

func (f ProductForm) opening() decimal.Decimal {
	if f.OpeningQuantity == nil {
		return decimal.Zero
	}
	return *f.OpeningQuantity
}
