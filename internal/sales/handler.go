package sales

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/customers"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/rbac"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler exposes sales order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	idem      *shared.IdempotencyStore
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds the sales handler.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermSalesOrderView)).Get("/", h.handleList)
	r.With(h.rbac.RequireAny(shared.PermSalesOrderView)).Get("/{id}", h.handleGet)
	r.With(h.rbac.RequireAny(shared.PermSalesOrderCreate)).Post("/", h.handleCreate)
	r.With(h.rbac.RequireAny(shared.PermSalesOrderEdit)).Put("/{id}", h.handleUpdate)
	r.With(h.rbac.RequireAny(shared.PermSalesOrderFulfill)).Patch("/{id}/warehouse-status", h.handleWarehouseStatus)
	r.With(h.rbac.RequireAny(shared.PermSalesOrderDelete)).Delete("/{id}", h.handleDelete)
}

type customerRequest struct {
	Name    string `json:"name" validate:"max=200"`
	Address string `json:"address" validate:"max=500"`
	Phone   string `json:"phone" validate:"max=32"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func (c customerRequest) snapshot() customers.Snapshot {
	return customers.Snapshot{Name: c.Name, Address: c.Address, Phone: c.Phone, Email: c.Email}
}

type createRequest struct {
	ProductID     int64            `json:"product_id" validate:"required,gt=0"`
	CustomerID    int64            `json:"customer_id" validate:"gte=0"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Unit          string           `json:"unit" validate:"max=32"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Description   string           `json:"description" validate:"max=1000"`
	DeliveryDate  *time.Time       `json:"delivery_date,omitempty"`
	PaymentMethod string           `json:"payment_method" validate:"omitempty,oneof=COD MOMO"`
	Customer      customerRequest  `json:"customer"`
}

type updateRequest struct {
	ProductID      int64            `json:"product_id" validate:"required,gt=0"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Unit           string           `json:"unit" validate:"max=32"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
	Description    string           `json:"description" validate:"max=1000"`
	DeliveryDate   *time.Time       `json:"delivery_date,omitempty"`
	PaymentMethod  string           `json:"payment_method" validate:"omitempty,oneof=COD MOMO"`
	CustomerStatus string           `json:"customer_status" validate:"required,oneof=CREATED DELIVERED_SUCCESS DELIVERED_FAILED"`
	Customer       customerRequest  `json:"customer"`
}

type warehouseStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func nullPrice(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*p)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err, req)
		return
	}
	key, err := shared.ParseIdempotencyKey(r.Header.Get(shared.IdempotencyHeader))
	if err != nil {
		httpx.RespondError(w, err, req)
		return
	}
	var order Order
	err = h.idem.Guard(r.Context(), key, "sales.order", func() error {
		var err error
		order, err = h.service.CreateOrder(r.Context(), CreateInput{
			ProductID:     req.ProductID,
			CustomerID:    req.CustomerID,
			Quantity:      req.Quantity,
			Unit:          req.Unit,
			UnitPrice:     nullPrice(req.UnitPrice),
			Description:   req.Description,
			DeliveryDate:  req.DeliveryDate,
			PaymentMethod: PaymentMethod(req.PaymentMethod),
			Customer:      req.Customer.snapshot(),
		})
		return err
	})
	if err != nil {
		h.logFailure("create sales order", err, slog.Int64("product_id", req.ProductID))
		httpx.RespondError(w, err, req)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	var req updateRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err, req)
		return
	}
	order, err := h.service.UpdateOrder(r.Context(), id, UpdateInput{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Unit:           req.Unit,
		UnitPrice:      nullPrice(req.UnitPrice),
		Description:    req.Description,
		DeliveryDate:   req.DeliveryDate,
		PaymentMethod:  PaymentMethod(req.PaymentMethod),
		CustomerStatus: CustomerStatus(req.CustomerStatus),
		Customer:       req.Customer.snapshot(),
	})
	if err != nil {
		h.logFailure("update sales order", err, slog.Int64("order_id", id))
		httpx.RespondError(w, err, req)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleWarehouseStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	var req warehouseStatusRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err, req)
		return
	}
	order, err := h.service.UpdateWarehouseStatus(r.Context(), id, WarehouseStatus(req.Status))
	if err != nil {
		h.logFailure("warehouse status", err, slog.Int64("order_id", id), slog.String("status", req.Status))
		httpx.RespondError(w, err, req)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.logFailure("delete sales order", err, slog.Int64("order_id", id))
		httpx.RespondError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	from, err := httpx.QueryDate(r, "from", false)
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	to, err := httpx.QueryDate(r, "to", true)
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	q := r.URL.Query()
	list, err := h.service.ListOrders(r.Context(), ListFilter{
		Keyword:         q.Get("keyword"),
		From:            from,
		To:              to,
		CustomerStatus:  CustomerStatus(q.Get("customer_status")),
		WarehouseStatus: WarehouseStatus(q.Get("warehouse_status")),
		Page:            httpx.QueryInt(r, "page"),
		PerPage:         httpx.QueryInt(r, "per_page"),
	})
	if err != nil {
		h.logFailure("list sales orders", err)
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) logFailure(msg string, err error, attrs ...any) {
	if httpx.IsClientError(err) {
		h.logger.Info(msg+" rejected", append(attrs, slog.Any("error", err))...)
		return
	}
	h.logger.Error(msg, append(attrs, slog.Any("error", err))...)
}
