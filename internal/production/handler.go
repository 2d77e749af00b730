package production

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/rbac"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler exposes production order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	idem      *shared.IdempotencyStore
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds the production handler.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProductionView, shared.PermProductionEdit))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductionEdit))
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
}

type materialRequest struct {
	MaterialID int64            `json:"material_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Unit       string           `json:"unit" validate:"max=32"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
}

type createRequest struct {
	ProductID      int64             `json:"product_id" validate:"required,gt=0"`
	Quantity       decimal.Decimal   `json:"quantity"`
	UnitPrice      *decimal.Decimal  `json:"unit_price,omitempty"`
	PlannedEndDate *time.Time        `json:"planned_end_date,omitempty"`
	Notes          string            `json:"notes" validate:"max=1000"`
	Materials      []materialRequest `json:"materials" validate:"dive"`
}

type updateRequest struct {
	Quantity       decimal.Decimal   `json:"quantity"`
	UnitPrice      *decimal.Decimal  `json:"unit_price,omitempty"`
	Status         string            `json:"status" validate:"required,oneof=CREATED IN_PROGRESS DONE"`
	PlannedEndDate *time.Time        `json:"planned_end_date,omitempty"`
	Notes          string            `json:"notes" validate:"max=1000"`
	Materials      []materialRequest `json:"materials" validate:"dive"`
}

func nullPrice(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*p)
}

func materialInputs(reqs []materialRequest) []MaterialInput {
	out := make([]MaterialInput, 0, len(reqs))
	for _, m := range reqs {
		out = append(out, MaterialInput{MaterialID: m.MaterialID, Quantity: m.Quantity, Unit: m.Unit, UnitPrice: nullPrice(m.UnitPrice)})
	}
	return out
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
	err = h.idem.Guard(r.Context(), key, "production.order", func() error {
		var err error
		order, err = h.service.CreateOrder(r.Context(), CreateInput{
			ProductID:      req.ProductID,
			Quantity:       req.Quantity,
			UnitPrice:      nullPrice(req.UnitPrice),
			PlannedEndDate: req.PlannedEndDate,
			Notes:          req.Notes,
			Materials:      materialInputs(req.Materials),
		})
		return err
	})
	if err != nil {
		h.logFailure("create production order", err, slog.Int64("product_id", req.ProductID))
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
		Quantity:       req.Quantity,
		UnitPrice:      nullPrice(req.UnitPrice),
		Status:         Status(req.Status),
		PlannedEndDate: req.PlannedEndDate,
		Notes:          req.Notes,
		Materials:      materialInputs(req.Materials),
	})
	if err != nil {
		h.logFailure("update production order", err, slog.Int64("order_id", id))
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
		h.logFailure("delete production order", err, slog.Int64("order_id", id))
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
		Keyword: q.Get("keyword"),
		Status:  Status(q.Get("status")),
		From:    from,
		To:      to,
		Page:    httpx.QueryInt(r, "page"),
		PerPage: httpx.QueryInt(r, "per_page"),
	})
	if err != nil {
		h.logFailure("list production orders", err)
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
