package suppliers

import (
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

func (s *Service) validate(sup Supplier) error {
	if strings.TrimSpace(sup.Name) == "" {
		return shared.FieldErrors{"name": "is required"}
	}
	return nil
}
