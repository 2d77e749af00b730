package customers

import (
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

func (s *Service) validate(c Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return shared.FieldErrors{"name": "is required"}
	}
	return nil
}
