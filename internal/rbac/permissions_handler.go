package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// PermissionsHandler exposes the caller's effective permissions.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.showMine)
}

type permissionsResponse struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (h *PermissionsHandler) showMine(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok || id.Anonymous() {
		httpx.RespondError(w, shared.ErrUnauthorized, nil)
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{UserID: id.UserID, Email: id.Email, Roles: id.Roles, Permissions: perms})
}
