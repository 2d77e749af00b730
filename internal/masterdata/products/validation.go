package products

import (
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

func (s *Service) validate(p Product) error {
	errs := shared.FieldErrors{}
	if strings.TrimSpace(p.Code) == "" {
		errs["code"] = "is required"
	}
	if strings.TrimSpace(p.Name) == "" {
		errs["name"] = "is required"
	}
	if !p.Type.IsValid() {
		errs["type"] = "must be FINISHED_GOOD or MATERIAL"
	}
	if p.UnitPrice.IsNegative() {
		errs["unit_price"] = "must not be negative"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
