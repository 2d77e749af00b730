package suppliers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/rbac"
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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	suppliers, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list suppliers failed", slog.Any("error", err))
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.ListResponse[Supplier]{Items: suppliers, Page: filters.Page, Limit: filters.Limit, Total: total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	supplier, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form SupplierForm
	if err := httpx.DecodeAndValidate(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err, form)
		return
	}
	supplier, err := h.service.Create(r.Context(), form.supplier())
	if err != nil {
		h.logger.Warn("create supplier failed", slog.Any("error", err))
		httpx.RespondError(w, err, form)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	var form SupplierForm
	if err := httpx.DecodeAndValidate(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err, form)
		return
	}
	supplier, err := h.service.Update(r.Context(), id, form.supplier())
	if err != nil {
		h.logger.Warn("update supplier failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err, form)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err, nil)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Warn("delete supplier failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
