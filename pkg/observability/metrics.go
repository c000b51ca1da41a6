package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the portal
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access decision metrics
	AccessDecisionsTotal *prometheus.CounterVec

	// Sponsorship workflow metrics
	SponsorshipsFiledTotal   *prometheus.CounterVec
	ApprovalDecisionsTotal   *prometheus.CounterVec
	TerminationsTotal        prometheus.Counter
	PendingReviewQueueLength *prometheus.GaugeVec

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heron_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heron_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heron_access_decisions_total",
				Help: "Access decision outcomes by capability and result",
			},
			[]string{"capability", "result"},
		),
		SponsorshipsFiledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heron_sponsorships_filed_total",
				Help: "Sponsorship requests filed, by access type and result",
			},
			[]string{"access_type", "result"},
		),
		ApprovalDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heron_approval_decisions_total",
				Help: "DROC approval decisions recorded, by organization and status",
			},
			[]string{"org", "status"},
		),
		TerminationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "heron_terminations_total",
				Help: "Sponsorship terminations recorded",
			},
		),
		PendingReviewQueueLength: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "heron_pending_review_queue_length",
				Help: "Requests pending review per organization",
			},
			[]string{"org"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heron_notifications_total",
				Help: "Notification deliveries, by kind and result",
			},
			[]string{"kind", "result"},
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heron_store_operations_total",
				Help: "Access record store operations, by operation and status",
			},
			[]string{"operation", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heron_store_operation_duration_seconds",
				Help:    "Access record store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AccessDecisionsTotal,
		m.SponsorshipsFiledTotal,
		m.ApprovalDecisionsTotal,
		m.TerminationsTotal,
		m.PendingReviewQueueLength,
		m.NotificationsTotal,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler wraps an HTTP handler with request count and duration
// metrics. The path label uses the route template, not the raw URL, to keep
// cardinality bounded.
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// ObserveStoreOperation records one store operation's outcome and duration
func (m *Metrics) ObserveStoreOperation(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
