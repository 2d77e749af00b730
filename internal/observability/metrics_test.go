package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareAndCounters(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/inventory/stock/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/stock/3", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	m.ObserveLedgerEntry("EXPORT", "SALES_ORDER", "insert")
	m.ObserveStockRejection("SALES_ORDER")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `wms_http_requests_total{code="418",route="/inventory/stock/{id}"} 1`), body)
	require.Contains(t, body, `wms_ledger_entries_total{cause="SALES_ORDER",direction="EXPORT",op="insert"} 1`)
	require.Contains(t, body, `wms_stock_rejections_total{cause="SALES_ORDER"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveLedgerEntry("IMPORT", "MANUAL", "insert")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
