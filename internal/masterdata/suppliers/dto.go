package suppliers

import "strings"

type SupplierForm struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=32"`
}

func (f SupplierForm) supplier() Supplier {
	return Supplier{
		Name:    strings.TrimSpace(f.Name),
		Address: strings.TrimSpace(f.Address),
		Email:   strings.ToLower(strings.TrimSpace(f.Email)),
		Phone:   strings.TrimSpace(f.Phone),
	}
}
