package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")
	m.CyclesTotal.WithLabelValues("alert", OutcomeCompleted).Inc()
	m.AlertsTotal.WithLabelValues("up").Add(2)
	m.TrackedAssets.Set(3)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.AlertsTotal.WithLabelValues("up")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `test_cycles_total{outcome="completed",task="alert"} 1`)
	assert.Contains(t, string(body), `test_tracked_assets 3`)
}

func TestNewDefaults(t *testing.T) {
	m := New(nil, "")
	m.NotifyFailures.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotifyFailures))
}
