package rbac

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

func TestEffectivePermissionsFoldsRoleCase(t *testing.T) {
	svc := NewService(nil)
	perms, err := svc.EffectivePermissions(context.Background(), shared.Identity{UserID: 1, Roles: []string{" Warehouse_Staff "}})
	require.NoError(t, err)
	require.Contains(t, perms, shared.PermInventoryEdit)
	require.NotContains(t, perms, shared.PermSalesOrderDelete)

	perms, err = svc.EffectivePermissions(context.Background(), shared.Identity{UserID: 1, Roles: []string{"unknown"}})
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestCan(t *testing.T) {
	svc := NewService(nil)
	ctx := shared.ContextWithIdentity(context.Background(), shared.Identity{UserID: 2, Roles: []string{"CUSTOMER"}})
	require.True(t, svc.Can(ctx, shared.PermSalesOrderCreate))
	require.False(t, svc.Can(ctx, shared.PermInventoryEdit))
	require.False(t, svc.Can(context.Background(), shared.PermCatalogView))
}

func TestMiddlewareStatuses(t *testing.T) {
	mw := Middleware{Service: NewService(nil), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name   string
		id     *shared.Identity
		h      http.Handler
		status int
	}{
		{"anonymous", nil, mw.RequireAny(shared.PermInventoryView)(ok), http.StatusUnauthorized},
		{"customer denied", &shared.Identity{UserID: 3, Roles: []string{shared.RoleCustomer}}, mw.RequireAny(shared.PermInventoryView)(ok), http.StatusForbidden},
		{"staff allowed", &shared.Identity{UserID: 4, Roles: []string{shared.RoleWarehouseStaff}}, mw.RequireAny(shared.PermInventoryView)(ok), http.StatusNoContent},
		{"staff lacks all", &shared.Identity{UserID: 4, Roles: []string{shared.RoleWarehouseStaff}}, mw.RequireAll(shared.PermInventoryView, shared.PermDashboardView)(ok), http.StatusForbidden},
		{"admin has all", &shared.Identity{UserID: 5, Roles: []string{shared.RoleAdmin}}, mw.RequireAll(shared.PermInventoryView, shared.PermDashboardView)(ok), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.id != nil {
				req = req.WithContext(shared.ContextWithIdentity(req.Context(), *tc.id))
			}
			rec := httptest.NewRecorder()
			tc.h.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestPermissionsHandler(t *testing.T) {
	h := NewPermissionsHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(nil))
	r := chi.NewRouter()
	h.MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), shared.Identity{UserID: 7, Email: "c@x.io", Roles: []string{"customer"}}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body permissionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(7), body.UserID)
	require.Contains(t, body.Permissions, shared.PermSalesOrderCreate)
}
