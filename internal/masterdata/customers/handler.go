package customers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/rbac"
	internalShared "github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(internalShared.PermCatalogView))
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(internalShared.PermCatalogEdit))
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	customers, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list customers failed", slog.Any("error", err))
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.ListResponse[Customer]{Items: customers, Page: filters.Page, Limit: filters.Limit, Total: total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	customer, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form CustomerForm
	if err := httpx.DecodeAndValidate(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err, form)
		return
	}
	customer, err := h.service.Create(r.Context(), form.customer())
	if err != nil {
		h.logger.Warn("create customer failed", slog.Any("error", err))
		httpx.RespondError(w, err, form)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	var form CustomerForm
	if err := httpx.DecodeAndValidate(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err, form)
		return
	}
	customer, err := h.service.Update(r.Context(), id, form.customer())
	if err != nil {
		h.logger.Warn("update customer failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err, form)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Warn("delete customer failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
