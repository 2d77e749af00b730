package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/rbac"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler serves the dashboard overview.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the dashboard handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAll(shared.PermDashboardView)).Get("/", h.handleOverview)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
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
	overview, err := h.service.Overview(r.Context(), Filter{Keyword: r.URL.Query().Get("keyword"), From: from, To: to})
	if err != nil {
		h.logger.Error("dashboard overview", slog.Any("error", err))
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}
