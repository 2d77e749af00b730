package customers

import "strings"

type CustomerForm struct {
	Name      string `json:"name" validate:"required,max=200"`
	Address   string `json:"address" validate:"max=500"`
	Phone     string `json:"phone" validate:"max=32"`
	Email     string `json:"email" validate:"omitempty,email"`
	UserEmail string `json:"user_email" validate:"omitempty,email"`
}

func (f CustomerForm) customer() Customer {
	return Customer{
		Name:      strings.TrimSpace(f.Name),
		Address:   strings.TrimSpace(f.Address),
		Phone:     strings.TrimSpace(f.Phone),
		Email:     strings.TrimSpace(f.Email),
		UserEmail: normalizeEmail(f.UserEmail),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
