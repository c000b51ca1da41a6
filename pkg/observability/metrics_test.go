package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	m.AccessDecisionsTotal.WithLabelValues("sponsor", "granted").Inc()
	m.ApprovalDecisionsTotal.WithLabelValues("KUH", "A").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("sponsor", "granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ApprovalDecisionsTotal.WithLabelValues("KUH", "A")))
}

func TestInstrumentHandlerCountsByStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := m.InstrumentHandler("/sponsorships", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	req := httptest.NewRequest(http.MethodPost, "/sponsorships", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/sponsorships", "403"))
	assert.Equal(t, 1.0, count)
}

func TestObserveStoreOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveStoreOperation("sponsorship_insert", time.Now(), nil)
	m.ObserveStoreOperation("sponsorship_insert", time.Now(), errors.New("connection reset"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("sponsorship_insert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("sponsorship_insert", "error")))
}

func TestMetricsHandlerServesScrape(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.TerminationsTotal.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "heron_terminations_total 1")
}
