package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/customers"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error)
}

// AuditPort records committed order changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the order fulfillment state machine.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier *inventory.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, audit AuditPort, notifier *inventory.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger, now: time.Now}
}

// customerOnly reports whether the identity acts as a shop customer rather than staff.
func customerOnly(id shared.Identity) bool {
	if !id.HasRole(shared.RoleCustomer) {
		return false
	}
	return !id.HasRole(shared.RoleAdmin) && !id.HasRole(shared.RoleManager) && !id.HasRole(shared.RoleWarehouseStaff)
}

func identity(ctx context.Context) shared.Identity {
	id, _ := shared.IdentityFromContext(ctx)
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	return id
}

// CreateOrder checks stock, binds the customer and stores a new order.
// No stock leaves the warehouse until delivery succeeds.
func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (Order, error) {
	if !in.Quantity.IsPositive() {
		return Order{}, inventory.ErrInvalidQuantity
	}
	if in.UnitPrice.Valid && in.UnitPrice.Decimal.IsNegative() {
		return Order{}, inventory.ErrInvalidUnitPrice
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = PaymentCOD
	}
	if !in.PaymentMethod.IsValid() {
		return Order{}, fmt.Errorf("payment method %q: %w", in.PaymentMethod, ErrInvalidStatus)
	}
	caller := identity(ctx)
	if !customerOnly(caller) && in.CustomerID <= 0 {
		return Order{}, ErrCustomerRequired
	}

	now := s.now().UTC()
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, _, err := inventory.CheckAvailable(ctx, tx, in.ProductID, in.Quantity)
		if err != nil {
			return err
		}

		var customer customers.Customer
		if customerOnly(caller) {
			customer, err = customers.FindOrCreateByUserEmail(ctx, tx, caller.Email, in.Customer)
		} else {
			customer, err = tx.GetCustomer(ctx, in.CustomerID)
		}
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
			Number:          FormatNumber(now, seq),
			ProductID:       product.ID,
			ProductName:     product.Name,
			CustomerID:      customer.ID,
			Customer:        customer.Snapshot(),
			Quantity:        in.Quantity,
			Unit:            firstNonBlank(in.Unit, product.Unit),
			UnitPrice:       product.UnitPrice,
			Description:     strings.TrimSpace(in.Description),
			OrderDate:       now,
			DeliveryDate:    in.DeliveryDate,
			CustomerStatus:  CustomerStatusCreated,
			WarehouseStatus: WarehousePending,
			PaymentMethod:   in.PaymentMethod,
			CustomerLogin:   customer.UserEmail,
		}
		if in.UnitPrice.Valid {
			order.UnitPrice = in.UnitPrice.Decimal
		}
		order, err = tx.InsertOrder(ctx, order)
		return err
	})
	if err != nil {
		if IsStockShortage(err) {
			s.notifier.StockRejected(inventory.CauseSalesOrder)
		}
		return Order{}, err
	}
	s.notifier.Invalidate(ctx)
	s.record(ctx, "sales_order:create", order.ID, map[string]any{
		"number":     order.Number,
		"product_id": order.ProductID,
		"quantity":   order.Quantity.String(),
	})
	return order, nil
}

// UpdateOrder applies the customer-facing edit. Moving the customer status to
// DELIVERED_SUCCESS posts the delivery export in the same transaction; a stock
// shortage aborts the whole edit.
func (s *Service) UpdateOrder(ctx context.Context, id int64, in UpdateInput) (Order, error) {
	if !in.Quantity.IsPositive() {
		return Order{}, inventory.ErrInvalidQuantity
	}
	if in.UnitPrice.Valid && in.UnitPrice.Decimal.IsNegative() {
		return Order{}, inventory.ErrInvalidUnitPrice
	}
	if !in.CustomerStatus.IsValid() {
		return Order{}, fmt.Errorf("customer status %q: %w", in.CustomerStatus, ErrInvalidStatus)
	}
	if in.PaymentMethod != "" && !in.PaymentMethod.IsValid() {
		return Order{}, fmt.Errorf("payment method %q: %w", in.PaymentMethod, ErrInvalidStatus)
	}
	caller := identity(ctx)
	now := s.now().UTC()

	var (
		order    Order
		exported bool
		changes  []inventory.Change
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if customerOnly(caller) && !order.OwnedBy(caller.Email) {
			return ErrOrderNotFound
		}
		prior, err := inventory.CausedEntries(ctx, tx, order.Cause(), inventory.DirectionExport)
		if err != nil {
			return err
		}
		exported = len(prior) > 0
		if exported {
			if in.ProductID != order.ProductID || !in.Quantity.Equal(order.Quantity) {
				return fmt.Errorf("product and quantity are frozen: %w", ErrOrderLocked)
			}
			if in.CustomerStatus != CustomerStatusDeliveredSuccess {
				return fmt.Errorf("delivered order cannot change customer status: %w", ErrOrderLocked)
			}
		}

		if in.ProductID != order.ProductID {
			product, err := tx.LockProduct(ctx, in.ProductID)
			if err != nil {
				return err
			}
			order.ProductID = product.ID
			order.ProductName = product.Name
			order.Unit = product.Unit
			order.UnitPrice = product.UnitPrice
		}
		order.Quantity = in.Quantity
		order.Unit = firstNonBlank(in.Unit, order.Unit)
		if in.UnitPrice.Valid {
			order.UnitPrice = in.UnitPrice.Decimal
		}
		order.Description = strings.TrimSpace(in.Description)
		if in.DeliveryDate != nil {
			order.DeliveryDate = in.DeliveryDate
		}
		if in.PaymentMethod != "" {
			order.PaymentMethod = in.PaymentMethod
		}
		order.Customer = order.Customer.Override(in.Customer)

		if needsExport(order, in.CustomerStatus, exported) {
			rec := inventory.Record(tx)
			if _, err := inventory.Export(ctx, rec, inventory.MovementInput{
				ProductID: order.ProductID,
				Quantity:  order.Quantity,
				Unit:      order.Unit,
				Note:      order.ExportNote(),
				Cause:     order.Cause(),
				ActorID:   caller.UserID,
				At:        now,
			}); err != nil {
				return err
			}
			changes = rec.Changes()
			if order.WarehouseStatus != WarehouseCompleted {
				order.WarehouseStatus = WarehouseDelivered
			}
			stampDelivery(&order, now)
		}
		order.CustomerStatus = in.CustomerStatus
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		if IsStockShortage(err) {
			s.notifier.StockRejected(inventory.CauseSalesOrder)
		}
		return Order{}, err
	}
	if len(changes) > 0 {
		s.notifier.LedgerChanged(ctx, changes)
		s.logger.Info("sales order delivered", slog.String("number", order.Number), slog.String("quantity", order.Quantity.String()))
	} else {
		s.notifier.Invalidate(ctx)
	}
	s.record(ctx, "sales_order:update", order.ID, map[string]any{
		"number":          order.Number,
		"customer_status": string(order.CustomerStatus),
		"exported":        exported || len(changes) > 0,
	})
	return order, nil
}

// UpdateWarehouseStatus moves the order along the warehouse pipeline. It never
// touches the ledger.
func (s *Service) UpdateWarehouseStatus(ctx context.Context, id int64, status WarehouseStatus) (Order, error) {
	var (
		order Order
		from  WarehouseStatus
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = order.WarehouseStatus
		if err := from.CanMoveTo(status); err != nil {
			return err
		}
		order.WarehouseStatus = status
		if status.stampsDelivery() {
			stampDelivery(&order, s.now())
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	s.notifier.Invalidate(ctx)
	s.record(ctx, "sales_order:warehouse_status", order.ID, map[string]any{
		"number": order.Number,
		"from":   string(from),
		"to":     string(status),
	})
	return order, nil
}

// DeleteOrder removes the order. Ledger entries it caused are kept.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	var (
		order Order
		kept  []inventory.Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		kept, err = inventory.CausedEntries(ctx, tx, order.Cause(), "")
		if err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	if len(kept) > 0 {
		s.logger.Warn("sales order deleted, ledger entries kept",
			slog.String("number", order.Number),
			slog.Int("entries", len(kept)))
	}
	s.notifier.Invalidate(ctx)
	s.record(ctx, "sales_order:delete", order.ID, map[string]any{
		"number":       order.Number,
		"kept_entries": len(kept),
	})
	return nil
}

// GetOrder returns one order. Customers only see their own orders.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	if id <= 0 {
		return Order{}, ErrOrderNotFound
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if caller := identity(ctx); customerOnly(caller) && !order.OwnedBy(caller.Email) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// OrderList is a page of orders with its total value.
type OrderList struct {
	Items      []Order           `json:"items"`
	TotalValue decimal.Decimal   `json:"total_value"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListOrders lists orders. Customers are restricted to their own.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) (OrderList, error) {
	if filter.CustomerStatus != "" && !filter.CustomerStatus.IsValid() {
		return OrderList{}, fmt.Errorf("customer status %q: %w", filter.CustomerStatus, ErrInvalidStatus)
	}
	if filter.WarehouseStatus != "" && !filter.WarehouseStatus.IsValid() {
		return OrderList{}, fmt.Errorf("warehouse status %q: %w", filter.WarehouseStatus, ErrInvalidStatus)
	}
	if caller := identity(ctx); customerOnly(caller) {
		if caller.Email == "" {
			return OrderList{Items: []Order{}}, nil
		}
		filter.CustomerEmail = caller.Email
	}
	filter.Keyword = strings.TrimSpace(filter.Keyword)
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return OrderList{}, err
	}
	list := OrderList{Items: orders, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}
	for _, o := range orders {
		list.TotalValue = list.TotalValue.Add(o.TotalValue())
	}
	return list, nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "sales_order",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("sales audit", slog.Any("error", err), slog.String("action", action))
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
