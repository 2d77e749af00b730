package customers

import (
	"strings"
	"time"
)

// Customer represents a customer entity. UserEmail binds the record to a login.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	UserEmail string    `json:"user_email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is the contact data copied onto an order.
type Snapshot struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// Snapshot returns the customer's current contact data.
func (c Customer) Snapshot() Snapshot {
	return Snapshot{Name: c.Name, Address: c.Address, Phone: c.Phone, Email: c.Email}
}

// FillBlank copies non-blank snapshot fields into blank customer fields.
// Existing values are never overwritten. It reports whether anything changed.
func (c Customer) FillBlank(s Snapshot) (Customer, bool) {
	changed := false
	fill := func(dst *string, src string) {
		src = strings.TrimSpace(src)
		if strings.TrimSpace(*dst) == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&c.Name, s.Name)
	fill(&c.Address, s.Address)
	fill(&c.Phone, s.Phone)
	fill(&c.Email, s.Email)
	return c, changed
}

// Override replaces snapshot fields with the non-blank fields of o.
func (s Snapshot) Override(o Snapshot) Snapshot {
	pick := func(cur, next string) string {
		if next = strings.TrimSpace(next); next != "" {
			return next
		}
		return cur
	}
	return Snapshot{
		Name:    pick(s.Name, o.Name),
		Address: pick(s.Address, o.Address),
		Phone:   pick(s.Phone, o.Phone),
		Email:   pick(s.Email, o.Email),
	}
}
