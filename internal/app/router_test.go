package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/rbac"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "production", RateLimitPerMinute: 1000}
	return NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbac.NewService(nil)),
		Metrics:            observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestIdentityHeadersReachHandlers(t *testing.T) {
	router := newTestRouter(t)

	do := func(headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/permissions/me", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusUnauthorized, do(nil).Code)
	require.Equal(t, http.StatusBadRequest, do(map[string]string{HeaderUserID: "abc"}).Code)

	rec := do(map[string]string{
		HeaderUserID:    "42",
		HeaderUserEmail: "Staff@Example.com",
		HeaderUserRoles: " Warehouse_Staff , ",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		UserID      int64    `json:"user_id"`
		Email       string   `json:"email"`
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(42), body.UserID)
	require.Equal(t, "staff@example.com", body.Email)
	require.Equal(t, []string{"Warehouse_Staff"}, body.Roles)
	require.Contains(t, body.Permissions, shared.PermInventoryEdit)
	require.NotContains(t, body.Permissions, shared.PermDashboardView)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}
	require.Equal(t, http.StatusOK, get("/healthz").Code)
	rec := get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "wms_http_requests_total")
}
