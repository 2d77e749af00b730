package procurement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/rbac"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler exposes purchase order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	idem      *shared.IdempotencyStore
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds procurement handler.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPurchaseView, shared.PermPurchaseEdit))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPurchaseEdit))
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
}

type createRequest struct {
	ProductID   int64            `json:"product_id" validate:"required,gt=0"`
	SupplierID  int64            `json:"supplier_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit" validate:"max=32"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Description string           `json:"description" validate:"max=1000"`
}

type updateRequest struct {
	createRequest
	Status string `json:"status" validate:"required,oneof=CREATED ORDERED RECEIVED CANCELED"`
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
	var po PurchaseOrder
	err = h.idem.Guard(r.Context(), key, "procurement.po", func() error {
		var err error
		po, err = h.service.CreatePurchase(r.Context(), CreateInput{
			ProductID:   req.ProductID,
			SupplierID:  req.SupplierID,
			Quantity:    req.Quantity,
			Unit:        req.Unit,
			UnitPrice:   nullPrice(req.UnitPrice),
			Description: req.Description,
		})
		return err
	})
	if err != nil {
		h.logFailure("create purchase order", err, slog.Int64("supplier_id", req.SupplierID))
		httpx.RespondError(w, err, req)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
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
	po, err := h.service.UpdatePurchase(r.Context(), id, UpdateInput{
		ProductID:   req.ProductID,
		SupplierID:  req.SupplierID,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		UnitPrice:   nullPrice(req.UnitPrice),
		Description: req.Description,
		Status:      Status(req.Status),
	})
	if err != nil {
		h.logFailure("update purchase order", err, slog.Int64("purchase_id", id))
		httpx.RespondError(w, err, req)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	if err := h.service.DeletePurchase(r.Context(), id); err != nil {
		h.logFailure("delete purchase order", err, slog.Int64("purchase_id", id))
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
	po, err := h.service.GetPurchase(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
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
	list, err := h.service.ListPurchases(r.Context(), ListFilter{
		Keyword: q.Get("keyword"),
		Status:  Status(q.Get("status")),
		From:    from,
		To:      to,
		Page:    httpx.QueryInt(r, "page"),
		PerPage: httpx.QueryInt(r, "per_page"),
	})
	if err != nil {
		h.logFailure("list purchase orders", err)
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
