package products

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	internalShared "github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// AuditPort records committed catalog changes.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

type Service struct {
	repo     Repository
	audit    AuditPort
	notifier *inventory.Notifier
	logger   *slog.Logger
}

func NewService(repo Repository, audit AuditPort, notifier *inventory.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	if filters.Type != "" && !inventory.ProductType(filters.Type).IsValid() {
		return nil, 0, internalShared.FieldErrors{"type": "must be FINISHED_GOOD or MATERIAL"}
	}
	return s.repo.List(ctx, filters.Normalize())
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// Create stores the product and posts its opening ledger entry in one transaction.
func (s *Service) Create(ctx context.Context, product Product, opening decimal.Decimal) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	if opening.IsNegative() {
		return Product{}, internalShared.FieldErrors{"opening_quantity": "must not be negative"}
	}
	var changes []inventory.Change
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saved, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		rec := inventory.Record(tx)
		if _, err := inventory.PostOpening(ctx, rec, saved.ID, opening, time.Now()); err != nil {
			return err
		}
		changes = rec.Changes()
		product = saved
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.notifier.LedgerChanged(ctx, changes)
	product.Opening = opening
	product.Stock = opening
	s.record(ctx, "product:create", product.ID, map[string]any{"code": product.Code, "opening": opening.String()})
	return product, nil
}

// Update edits catalog fields. The opening quantity is immutable.
func (s *Service) Update(ctx context.Context, id int64, product Product) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	product.ID = id
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockProduct(ctx, id); err != nil {
			return err
		}
		return tx.UpdateProduct(ctx, product)
	})
	if err != nil {
		return Product{}, err
	}
	s.notifier.Invalidate(ctx)
	s.record(ctx, "product:update", id, map[string]any{"code": product.Code, "unit_price": product.UnitPrice.String()})
	return s.repo.Get(ctx, id)
}

// Delete removes a product that has never moved. Products referenced by
// orders or by import/export entries are kept.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockProduct(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountMovements(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("product %d has %d ledger entries: %w", id, n, shared.ErrInUse)
		}
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.notifier.Invalidate(ctx)
	s.record(ctx, "product:delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  internalShared.ActorID(ctx),
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("product audit", slog.Any("error", err), slog.String("action", action))
	}
}
