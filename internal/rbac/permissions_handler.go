package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/hr-analytics/internal/platform/httpx"
	"github.com/odyssey-erp/hr-analytics/internal/shared"
)

// PermissionCatalog lists the registered permissions.
type PermissionCatalog interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// PermissionsHandler reports the permission catalog and the caller's grants.
type PermissionsHandler struct {
	logger  *slog.Logger
	catalog PermissionCatalog
	rbac    Middleware
}

// NewPermissionsHandler builds a PermissionsHandler.
func NewPermissionsHandler(logger *slog.Logger, catalog PermissionCatalog, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, catalog: catalog, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPermissionsView))
		r.Get("/", h.listPermissions)
		r.Get("/mine", h.myPermissions)
	})
}

type permissionsResponse struct {
	Permissions []Permission `json:"permissions"`
	Dashboard   []string     `json:"dashboard_scopes"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.catalog.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{Permissions: perms, Dashboard: shared.AllScopes()})
}

func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID, _ := h.rbac.currentUserID(r)
	granted, err := h.rbac.Source.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	set := grantedSet(granted)
	out := make(map[string]bool, len(shared.AllScopes()))
	for _, scope := range shared.AllScopes() {
		_, ok := set[scope]
		out[scope] = ok
	}
	httpx.JSON(w, http.StatusOK, out)
}
