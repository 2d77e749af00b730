package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id int64) (Entry, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CurrentTotals(ctx context.Context, productID int64) (Totals, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, int, error)
	ProductTotals(ctx context.Context, filter ValuationFilter) ([]ProductTotals, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates manual ledger operations and valuation reads.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier *Notifier
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, notifier *Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger}
}

// PostImport records a manual import.
func (s *Service) PostImport(ctx context.Context, input MovementInput) (Entry, error) {
	return s.postManual(ctx, DirectionImport, input)
}

// PostExport records a manual export. Quantity may not exceed current stock.
func (s *Service) PostExport(ctx context.Context, input MovementInput) (Entry, error) {
	return s.postManual(ctx, DirectionExport, input)
}

func (s *Service) postManual(ctx context.Context, direction Direction, input MovementInput) (Entry, error) {
	if strings.TrimSpace(input.Note) == "" {
		return Entry{}, ErrNoteRequired
	}
	input.Cause = Manual
	if input.ActorID == 0 {
		input.ActorID = shared.ActorID(ctx)
	}
	var (
		entry   Entry
		changes []Change
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec := Record(tx)
		var err error
		if direction == DirectionExport {
			entry, err = Export(ctx, rec, input)
		} else {
			entry, err = Import(ctx, rec, input)
		}
		changes = rec.Changes()
		return err
	})
	if err != nil {
		if IsStockShortage(err) {
			s.notifier.StockRejected(CauseManual)
		}
		return Entry{}, err
	}
	s.notifier.LedgerChanged(ctx, changes)
	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("inventory:%s", strings.ToLower(string(direction))), entry.ID, map[string]any{
		"product_id": entry.ProductID,
		"quantity":   entry.Quantity.String(),
		"unit_price": entry.UnitPrice.String(),
		"note":       entry.Note,
	})
	return entry, nil
}

// EditEntry revises quantity, price or note of an import or export entry.
func (s *Service) EditEntry(ctx context.Context, id int64, input RevisionInput) (Entry, error) {
	if input.ActorID == 0 {
		input.ActorID = shared.ActorID(ctx)
	}
	var (
		before, after Entry
		changes       []Change
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec := Record(tx)
		var err error
		before, after, err = Revise(ctx, rec, id, input)
		changes = rec.Changes()
		return err
	})
	if err != nil {
		if IsStockShortage(err) {
			s.notifier.StockRejected(CauseManual)
		}
		return Entry{}, err
	}
	s.notifier.LedgerChanged(ctx, changes)
	s.recordAudit(ctx, input.ActorID, "inventory:edit", after.ID, map[string]any{
		"direction":    string(after.Direction),
		"old_quantity": before.Quantity.String(),
		"new_quantity": after.Quantity.String(),
	})
	return after, nil
}

// DeleteEntry removes an import or export entry, restoring the stock it moved.
func (s *Service) DeleteEntry(ctx context.Context, id int64) (Entry, error) {
	var (
		removed Entry
		changes []Change
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec := Record(tx)
		var err error
		removed, err = Remove(ctx, rec, id)
		changes = rec.Changes()
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.notifier.LedgerChanged(ctx, changes)
	s.recordAudit(ctx, shared.ActorID(ctx), "inventory:delete", removed.ID, map[string]any{
		"direction":  string(removed.Direction),
		"product_id": removed.ProductID,
		"quantity":   removed.Quantity.String(),
		"cause":      string(removed.Cause.Kind),
	})
	return removed, nil
}

// GetEntry returns one ledger entry.
func (s *Service) GetEntry(ctx context.Context, id int64) (Entry, error) {
	if id <= 0 {
		return Entry{}, ErrEntryNotFound
	}
	return s.repo.GetEntry(ctx, id)
}

// ListEntries lists ledger entries.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, shared.Pagination, error) {
	if filter.Direction != "" && !filter.Direction.IsValid() {
		return nil, shared.Pagination{}, ErrInvalidDirection
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	entries, total, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// CurrentStock returns the ledger-derived stock of a product.
func (s *Service) CurrentStock(ctx context.Context, productID int64) (decimal.Decimal, error) {
	v, err := s.Valuation(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Stock, nil
}

// Valuation values one product at its current unit price.
func (s *Service) Valuation(ctx context.Context, productID int64) (Valuation, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return Valuation{}, err
	}
	totals, err := s.repo.CurrentTotals(ctx, productID)
	if err != nil {
		return Valuation{}, err
	}
	return Valuate(product, totals), nil
}

// InventoryValuation values the catalog.
func (s *Service) InventoryValuation(ctx context.Context, filter ValuationFilter) (InventoryReport, error) {
	if filter.Type != "" && !filter.Type.IsValid() {
		return InventoryReport{}, fmt.Errorf("inventory: invalid product type %q: %w", filter.Type, shared.ErrValidation)
	}
	items, err := s.repo.ProductTotals(ctx, filter)
	if err != nil {
		return InventoryReport{}, err
	}
	return BuildReport(items), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "inventory_entry", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
		s.logger.Warn("inventory audit", slog.Any("error", err), slog.String("action", action))
	}
}
