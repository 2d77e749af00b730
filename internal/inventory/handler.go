package inventory

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

// Handler wires HTTP endpoints for the inventory ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	idem      *shared.IdempotencyStore
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView, shared.PermSalesOrderCreate, shared.PermProductionEdit, shared.PermPurchaseEdit))
		r.Get("/stock/{productID}", h.handleStock)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView))
		r.Get("/entries", h.handleListEntries)
		r.Get("/entries/{id}", h.handleGetEntry)
		r.Get("/valuation", h.handleValuation)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInventoryEdit))
		r.Post("/imports", h.handleMovement(DirectionImport))
		r.Post("/exports", h.handleMovement(DirectionExport))
		r.Put("/entries/{id}", h.handleEditEntry)
		r.Delete("/entries/{id}", h.handleDeleteEntry)
	})
}

type movementRequest struct {
	ProductID  int64            `json:"product_id" validate:"required,gt=0"`
	SupplierID int64            `json:"supplier_id" validate:"gte=0"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
	Unit       string           `json:"unit" validate:"max=32"`
	Note       string           `json:"note" validate:"required,max=500"`
}

type revisionRequest struct {
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Note      string           `json:"note" validate:"max=500"`
}

type stockResponse struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     decimal.Decimal `json:"stock"`
}

type entryListResponse struct {
	Items      []Entry           `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func nullPrice(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*p)
}

func (h *Handler) handleMovement(direction Direction) http.HandlerFunc {
	module := "inventory." + string(direction)
	return func(w http.ResponseWriter, r *http.Request) {
		var req movementRequest
		if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
			httpx.RespondError(w, err, req)
			return
		}
		key, err := shared.ParseIdempotencyKey(r.Header.Get(shared.IdempotencyHeader))
		if err != nil {
			httpx.RespondError(w, err, req)
			return
		}
		input := MovementInput{
			ProductID:  req.ProductID,
			SupplierID: req.SupplierID,
			Quantity:   req.Quantity,
			UnitPrice:  nullPrice(req.UnitPrice),
			Unit:       req.Unit,
			Note:       req.Note,
		}
		var entry Entry
		err = h.idem.Guard(r.Context(), key, module, func() error {
			var err error
			if direction == DirectionExport {
				entry, err = h.service.PostExport(r.Context(), input)
			} else {
				entry, err = h.service.PostImport(r.Context(), input)
			}
			return err
		})
		if err != nil {
			h.logFailure("post movement", err, slog.String("direction", string(direction)), slog.Int64("product_id", req.ProductID))
			httpx.RespondError(w, err, req)
			return
		}
		httpx.JSON(w, http.StatusCreated, entry)
	}
}

func (h *Handler) handleEditEntry(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	var req revisionRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err, req)
		return
	}
	entry, err := h.service.EditEntry(r.Context(), id, RevisionInput{Quantity: req.Quantity, UnitPrice: nullPrice(req.UnitPrice), Note: req.Note})
	if err != nil {
		h.logFailure("edit entry", err, slog.Int64("entry_id", id))
		httpx.RespondError(w, err, req)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	if _, err := h.service.DeleteEntry(r.Context(), id); err != nil {
		h.logFailure("delete entry", err, slog.Int64("entry_id", id))
		httpx.RespondError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
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
	filter := EntryFilter{
		Direction: Direction(q.Get("direction")),
		ProductID: httpx.QueryInt64(r, "product_id"),
		Keyword:   q.Get("keyword"),
		From:      from,
		To:        to,
		Page:      httpx.QueryInt(r, "page"),
		PerPage:   httpx.QueryInt(r, "per_page"),
	}
	if kind := q.Get("cause"); kind != "" {
		filter.Cause = &Cause{Kind: CauseKind(kind), ID: httpx.QueryInt64(r, "cause_id")}
	}
	entries, page, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		h.logFailure("list entries", err)
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, entryListResponse{Items: entries, Pagination: page})
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "productID")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	v, err := h.service.Valuation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, stockResponse{ProductID: v.ProductID, Name: v.ProductName, Unit: v.Unit, UnitPrice: v.UnitPrice, Stock: v.Stock})
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.service.InventoryValuation(r.Context(), ValuationFilter{Type: ProductType(q.Get("type")), Keyword: q.Get("keyword")})
	if err != nil {
		h.logFailure("inventory valuation", err)
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) logFailure(msg string, err error, attrs ...any) {
	if httpx.IsClientError(err) {
		h.logger.Info(msg+" rejected", append(attrs, slog.Any("error", err))...)
		return
	}
	h.logger.Error(msg, append(attrs, slog.Any("error", err))...)
}
