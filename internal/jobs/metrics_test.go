package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("inventory:stock_audit").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("inventory:stock_audit").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory:stock_audit", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("inventory:stock_audit")))

	m.SetNegativeStock(3)
	require.Equal(t, 3.0, testutil.ToFloat64(m.negativeStock))
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("x").End(nil))
	m.SetNegativeStock(1)
	m.SetStockValue("MATERIAL", 1)
}
