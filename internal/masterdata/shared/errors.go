package shared

import (
	"fmt"

	internalShared "github.com/odyssey-erp/odyssey-wms/internal/shared"
)

var (
	ErrNotFound   = fmt.Errorf("masterdata: resource not found: %w", internalShared.ErrNotFound)
	ErrDuplicate  = fmt.Errorf("masterdata: duplicate entry: %w", internalShared.ErrConflict)
	ErrInUse      = fmt.Errorf("masterdata: record is still referenced: %w", internalShared.ErrConflict)
	ErrValidation = fmt.Errorf("masterdata: validation failed: %w", internalShared.ErrValidation)
	ErrInvalidID  = fmt.Errorf("masterdata: invalid ID: %w", internalShared.ErrValidation)
)
