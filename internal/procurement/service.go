package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPurchases(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, decimal.Decimal, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates purchase flows.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier *inventory.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, audit AuditPort, notifier *inventory.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger, now: time.Now}
}

func validateLine(supplierID int64, quantity decimal.Decimal, price decimal.NullDecimal) error {
	if supplierID <= 0 {
		return ErrSupplierRequired
	}
	if !quantity.IsPositive() {
		return inventory.ErrInvalidQuantity
	}
	if price.Valid && price.Decimal.IsNegative() {
		return inventory.ErrInvalidUnitPrice
	}
	return nil
}

func lockMaterial(ctx context.Context, tx TxRepository, productID int64) (inventory.Product, error) {
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return inventory.Product{}, err
	}
	if p.Type != inventory.ProductTypeMaterial {
		return inventory.Product{}, fmt.Errorf("%q: %w", p.Name, ErrNotMaterial)
	}
	return p, nil
}

// CreatePurchase records a new purchase. Stock moves only on receipt.
func (s *Service) CreatePurchase(ctx context.Context, in CreateInput) (PurchaseOrder, error) {
	if err := validateLine(in.SupplierID, in.Quantity, in.UnitPrice); err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now().UTC()
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := lockMaterial(ctx, tx, in.ProductID)
		if err != nil {
			return err
		}
		supplier, err := tx.SupplierName(ctx, in.SupplierID)
		if err != nil {
			return err
		}
		if err := tx.LockSequence(ctx, shared.DocumentNumberLockKey(NumberPrefix, now)); err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, now)
		if err != nil {
			return err
		}
		po = PurchaseOrder{
			Number:       FormatNumber(now, seq),
			ProductID:    product.ID,
			ProductName:  product.Name,
			SupplierID:   in.SupplierID,
			SupplierName: supplier,
			Quantity:     in.Quantity,
			Unit:         product.Unit,
			UnitPrice:    product.UnitPrice,
			Description:  strings.TrimSpace(in.Description),
			OrderDate:    now,
			Status:       StatusCreated,
		}
		if unit := strings.TrimSpace(in.Unit); unit != "" {
			po.Unit = unit
		}
		if in.UnitPrice.Valid {
			po.UnitPrice = in.UnitPrice.Decimal
		}
		po, err = tx.InsertPurchase(ctx, po)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.notifier.Invalidate(ctx)
	s.recordAudit(ctx, "purchase_order:create", po.ID, map[string]any{
		"number":      po.Number,
		"supplier_id": po.SupplierID,
		"quantity":    po.Quantity.String(),
	})
	return po, nil
}

// UpdatePurchase edits the purchase. The first move into RECEIVED stamps the
// received date and imports the quantity from the supplier.
func (s *Service) UpdatePurchase(ctx context.Context, id int64, in UpdateInput) (PurchaseOrder, error) {
	if err := validateLine(in.SupplierID, in.Quantity, in.UnitPrice); err != nil {
		return PurchaseOrder{}, err
	}
	if !in.Status.IsValid() {
		return PurchaseOrder{}, fmt.Errorf("status %q: %w", in.Status, ErrInvalidStatus)
	}
	now := s.now().UTC()

	var (
		po      PurchaseOrder
		changes []inventory.Change
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		price := po.UnitPrice
		if in.UnitPrice.Valid {
			price = in.UnitPrice.Decimal
		}
		unit := strings.TrimSpace(in.Unit)
		if unit == "" {
			unit = po.Unit
		}

		if po.Status.IsTerminal() {
			if in.Status != po.Status {
				return fmt.Errorf("purchase %s is %s: %w", po.Number, po.Status, ErrInvalidState)
			}
			if in.ProductID != po.ProductID || in.SupplierID != po.SupplierID || !in.Quantity.Equal(po.Quantity) ||
				unit != po.Unit || !price.Equal(po.UnitPrice) {
				return fmt.Errorf("purchase %s is %s: %w", po.Number, po.Status, ErrInvalidState)
			}
		}

		if in.ProductID != po.ProductID {
			product, err := lockMaterial(ctx, tx, in.ProductID)
			if err != nil {
				return err
			}
			po.ProductID = product.ID
			po.ProductName = product.Name
		}
		if in.SupplierID != po.SupplierID {
			name, err := tx.SupplierName(ctx, in.SupplierID)
			if err != nil {
				return err
			}
			po.SupplierID = in.SupplierID
			po.SupplierName = name
		}
		received := po.Status != StatusReceived && in.Status == StatusReceived
		po.Quantity = in.Quantity
		po.Unit = unit
		po.UnitPrice = price
		po.Description = strings.TrimSpace(in.Description)
		po.Status = in.Status

		if received {
			if po.ReceivedDate == nil {
				po.ReceivedDate = &now
			}
			prior, err := inventory.CausedEntries(ctx, tx, po.Cause(), inventory.DirectionImport)
			if err != nil {
				return err
			}
			if len(prior) == 0 {
				rec := inventory.Record(tx)
				if _, err := inventory.Import(ctx, rec, inventory.MovementInput{
					ProductID:  po.ProductID,
					SupplierID: po.SupplierID,
					Quantity:   po.Quantity,
					UnitPrice:  decimal.NewNullDecimal(po.UnitPrice),
					Unit:       po.Unit,
					Note:       po.importNote(),
					Cause:      po.Cause(),
					ActorID:    shared.ActorID(ctx),
					At:         now,
				}); err != nil {
					return err
				}
				changes = rec.Changes()
			}
		}
		return tx.UpdatePurchase(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	if len(changes) > 0 {
		s.notifier.LedgerChanged(ctx, changes)
		s.logger.Info("purchase received", slog.String("number", po.Number), slog.String("quantity", po.Quantity.String()))
	} else {
		s.notifier.Invalidate(ctx)
	}
	s.recordAudit(ctx, "purchase_order:update", po.ID, map[string]any{
		"number": po.Number,
		"status": string(po.Status),
	})
	return po, nil
}

// DeletePurchase removes the purchase. A receipt import it caused is kept.
func (s *Service) DeletePurchase(ctx context.Context, id int64) error {
	var (
		po   PurchaseOrder
		kept []inventory.Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		kept, err = inventory.CausedEntries(ctx, tx, po.Cause(), "")
		if err != nil {
			return err
		}
		return tx.DeletePurchase(ctx, id)
	})
	if err != nil {
		return err
	}
	if len(kept) > 0 {
		s.logger.Warn("purchase order deleted, ledger entries kept",
			slog.String("number", po.Number),
			slog.Int("entries", len(kept)))
	}
	s.notifier.Invalidate(ctx)
	s.recordAudit(ctx, "purchase_order:delete", po.ID, map[string]any{
		"number":       po.Number,
		"kept_entries": len(kept),
	})
	return nil
}

// GetPurchase returns one purchase order.
func (s *Service) GetPurchase(ctx context.Context, id int64) (PurchaseOrder, error) {
	if id <= 0 {
		return PurchaseOrder{}, ErrPurchaseNotFound
	}
	return s.repo.GetPurchase(ctx, id)
}

// PurchaseList is a page of purchases with the value of every match.
type PurchaseList struct {
	Items      []PurchaseOrder   `json:"items"`
	TotalValue decimal.Decimal   `json:"total_value"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListPurchases lists purchase orders.
func (s *Service) ListPurchases(ctx context.Context, filter ListFilter) (PurchaseList, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return PurchaseList{}, fmt.Errorf("status %q: %w", filter.Status, ErrInvalidStatus)
	}
	filter.Keyword = strings.TrimSpace(filter.Keyword)
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	items, total, value, err := s.repo.ListPurchases(ctx, filter)
	if err != nil {
		return PurchaseList{}, err
	}
	return PurchaseList{Items: items, TotalValue: value, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "purchase_order",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("procurement audit", slog.Any("error", err), slog.String("action", action))
	}
}
