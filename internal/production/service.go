package production

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, Summary, error)
}

// AuditPort records committed production changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the production state machine.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier *inventory.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a production service.
func NewService(repo RepositoryPort, audit AuditPort, notifier *inventory.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger, now: time.Now}
}

func validateHeader(quantity decimal.Decimal, price decimal.NullDecimal) error {
	if !quantity.IsPositive() {
		return inventory.ErrInvalidQuantity
	}
	if price.Valid && price.Decimal.IsNegative() {
		return inventory.ErrInvalidUnitPrice
	}
	return nil
}

// resolveMaterials locks every material and fills unit and price defaults.
func resolveMaterials(ctx context.Context, tx TxRepository, lines []MaterialInput) ([]Material, error) {
	out := make([]Material, 0, len(lines))
	for i, line := range lines {
		if !line.Quantity.IsPositive() {
			return nil, fmt.Errorf("material line %d: %w", i+1, inventory.ErrInvalidQuantity)
		}
		if line.UnitPrice.Valid && line.UnitPrice.Decimal.IsNegative() {
			return nil, fmt.Errorf("material line %d: %w", i+1, inventory.ErrInvalidUnitPrice)
		}
		p, err := tx.LockProduct(ctx, line.MaterialID)
		if err != nil {
			return nil, fmt.Errorf("material line %d: %w", i+1, err)
		}
		if p.Type != inventory.ProductTypeMaterial {
			return nil, fmt.Errorf("material line %d %q: %w", i+1, p.Name, ErrNotMaterial)
		}
		m := Material{MaterialID: p.ID, MaterialName: p.Name, Quantity: line.Quantity, Unit: strings.TrimSpace(line.Unit), UnitPrice: p.UnitPrice}
		if m.Unit == "" {
			m.Unit = p.Unit
		}
		if line.UnitPrice.Valid {
			m.UnitPrice = line.UnitPrice.Decimal
		}
		out = append(out, m)
	}
	return out, nil
}

// CreateOrder opens a production order in progress. No stock moves until it is done.
func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (Order, error) {
	if err := validateHeader(in.Quantity, in.UnitPrice); err != nil {
		return Order{}, err
	}
	now := s.now().UTC()
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.LockProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if product.Type != inventory.ProductTypeFinishedGood {
			return fmt.Errorf("%q: %w", product.Name, ErrNotFinishedGood)
		}
		materials, err := resolveMaterials(ctx, tx, in.Materials)
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
		order = Order{
			Number:         FormatNumber(now, seq),
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       in.Quantity,
			UnitPrice:      product.UnitPrice,
			Status:         StatusInProgress,
			StartDate:      now,
			PlannedEndDate: in.PlannedEndDate,
			Notes:          strings.TrimSpace(in.Notes),
			Materials:      materials,
		}
		if in.UnitPrice.Valid {
			order.UnitPrice = in.UnitPrice.Decimal
		}
		order, err = tx.InsertOrder(ctx, order)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.notifier.Invalidate(ctx)
	s.record(ctx, "production_order:create", order.ID, map[string]any{
		"number":     order.Number,
		"product_id": order.ProductID,
		"quantity":   order.Quantity.String(),
	})
	return order, nil
}

// matchesStored reports whether the submitted lines describe the stored ones.
// Omitted units and prices keep the stored values, so catalog changes after
// completion do not count as edits.
func matchesStored(in []MaterialInput, stored []Material) bool {
	if len(in) != len(stored) {
		return false
	}
	for i, line := range in {
		m := stored[i]
		if line.MaterialID != m.MaterialID || !line.Quantity.Equal(m.Quantity) {
			return false
		}
		if unit := strings.TrimSpace(line.Unit); unit != "" && unit != m.Unit {
			return false
		}
		if line.UnitPrice.Valid && !line.UnitPrice.Decimal.Equal(m.UnitPrice) {
			return false
		}
	}
	return true
}

// UpdateOrder replaces the order's fields and materials. Moving to DONE posts
// the finished-goods import and one material export per line, once.
func (s *Service) UpdateOrder(ctx context.Context, id int64, in UpdateInput) (Order, error) {
	if err := validateHeader(in.Quantity, in.UnitPrice); err != nil {
		return Order{}, err
	}
	if !in.Status.IsValid() {
		return Order{}, fmt.Errorf("status %q: %w", in.Status, ErrInvalidStatus)
	}
	now := s.now().UTC()

	var (
		order   Order
		changes []inventory.Change
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		price := order.UnitPrice
		if in.UnitPrice.Valid {
			price = in.UnitPrice.Decimal
		}

		materials := order.Materials
		if order.Status == StatusDone {
			if in.Status != StatusDone {
				return fmt.Errorf("order %s is done: %w", order.Number, ErrInvalidState)
			}
			if !in.Quantity.Equal(order.Quantity) || !price.Equal(order.UnitPrice) || !matchesStored(in.Materials, order.Materials) {
				return fmt.Errorf("order %s: %w", order.Number, ErrOrderLocked)
			}
		} else {
			materials, err = resolveMaterials(ctx, tx, in.Materials)
			if err != nil {
				return err
			}
		}

		order.Quantity = in.Quantity
		order.UnitPrice = price
		order.PlannedEndDate = in.PlannedEndDate
		order.Notes = strings.TrimSpace(in.Notes)
		order.Materials = materials
		order.Status = in.Status

		if order.Status == StatusDone {
			if order.EndDate == nil {
				order.EndDate = &now
			}
			rec := inventory.Record(tx)
			if err := s.complete(ctx, rec, order, now); err != nil {
				return err
			}
			changes = rec.Changes()
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		if inventory.IsStockShortage(err) {
			s.notifier.StockRejected(inventory.CauseProductionOrder)
		}
		return Order{}, err
	}
	if len(changes) > 0 {
		s.notifier.LedgerChanged(ctx, changes)
		s.logger.Info("production order completed",
			slog.String("number", order.Number),
			slog.Int("materials", len(order.Materials)))
	} else {
		s.notifier.Invalidate(ctx)
	}
	s.record(ctx, "production_order:update", order.ID, map[string]any{
		"number":  order.Number,
		"status":  string(order.Status),
		"entries": len(changes),
	})
	return order, nil
}

// complete posts the completion entries unless an import for the output
// product is already linked to the order. Every material is checked before
// anything is written.
func (s *Service) complete(ctx context.Context, tx inventory.LedgerTx, order Order, now time.Time) error {
	imports, err := inventory.CausedEntries(ctx, tx, order.Cause(), inventory.DirectionImport)
	if err != nil {
		return err
	}
	for _, e := range imports {
		if e.ProductID == order.ProductID {
			return nil
		}
	}

	need := map[int64]decimal.Decimal{}
	ids := []int64{}
	for _, m := range order.Materials {
		if _, ok := need[m.MaterialID]; !ok {
			ids = append(ids, m.MaterialID)
		}
		need[m.MaterialID] = need[m.MaterialID].Add(m.Quantity)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, materialID := range ids {
		if _, _, err := inventory.CheckAvailable(ctx, tx, materialID, need[materialID]); err != nil {
			return err
		}
	}

	actor := shared.ActorID(ctx)
	if _, err := inventory.Import(ctx, tx, inventory.MovementInput{
		ProductID: order.ProductID,
		Quantity:  order.Quantity,
		UnitPrice: decimal.NewNullDecimal(order.UnitPrice),
		Note:      order.importNote(),
		Cause:     order.Cause(),
		ActorID:   actor,
		At:        now,
	}); err != nil {
		return err
	}
	for _, m := range order.Materials {
		if _, err := inventory.Export(ctx, tx, inventory.MovementInput{
			ProductID: m.MaterialID,
			Quantity:  m.Quantity,
			UnitPrice: decimal.NewNullDecimal(m.UnitPrice),
			Unit:      m.Unit,
			Note:      order.exportNote(),
			Cause:     order.Cause(),
			ActorID:   actor,
			At:        now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteOrder removes the order and reverses every ledger entry it posted.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	var (
		order   Order
		changes []inventory.Change
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		rec := inventory.Record(tx)
		if _, err := inventory.RemoveCaused(ctx, rec, order.Cause()); err != nil {
			return err
		}
		changes = rec.Changes()
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	if len(changes) > 0 {
		s.notifier.LedgerChanged(ctx, changes)
	} else {
		s.notifier.Invalidate(ctx)
	}
	s.record(ctx, "production_order:delete", order.ID, map[string]any{
		"number":           order.Number,
		"reversed_entries": len(changes),
	})
	return nil
}

// GetOrder returns one order with its materials.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	if id <= 0 {
		return Order{}, ErrOrderNotFound
	}
	return s.repo.GetOrder(ctx, id)
}

// OrderList is a page of orders with totals over every match.
type OrderList struct {
	Items      []Order           `json:"items"`
	Summary    Summary           `json:"summary"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListOrders lists production orders.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) (OrderList, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return OrderList{}, fmt.Errorf("status %q: %w", filter.Status, ErrInvalidStatus)
	}
	filter.Keyword = strings.TrimSpace(filter.Keyword)
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	orders, total, summary, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return OrderList{}, err
	}
	return OrderList{Items: orders, Summary: summary, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "production_order",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("production audit", slog.Any("error", err), slog.String("action", action))
	}
}
