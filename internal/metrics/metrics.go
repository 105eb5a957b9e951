package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the jeton gateway.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Dispatch metrics.
	DispatchTotal       *prometheus.CounterVec
	ProcessorDuration   *prometheus.HistogramVec
	ProviderErrorsTotal *prometheus.CounterVec

	// Ledger metrics.
	PointsDeductedTotal     *prometheus.CounterVec
	PointsCreditedTotal     *prometheus.CounterVec
	InsufficientPointsTotal *prometheus.CounterVec

	// Audit metrics.
	AuditWriteFailuresTotal prometheus.Counter
	AuditBufferSize         prometheus.Gauge

	RateLimitRejectionsTotal prometheus.Counter

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jeton_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jeton_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jeton_dispatch_total",
			Help: "Total number of function invocations by outcome.",
		}, []string{"function", "outcome"}),

		ProcessorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jeton_processor_duration_seconds",
			Help:    "Processor execution time in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"function"}),

		ProviderErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jeton_provider_errors_total",
			Help: "Total number of failed provider calls by provider and error class.",
		}, []string{"provider", "class"}),

		PointsDeductedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jeton_points_deducted_total",
			Help: "Total points deducted by function.",
		}, []string{"function"}),

		PointsCreditedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jeton_points_credited_total",
			Help: "Total points credited by transaction type.",
		}, []string{"type"}),

		InsufficientPointsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jeton_insufficient_points_total",
			Help: "Total number of invocations rejected for insufficient points.",
		}, []string{"function"}),

		AuditWriteFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jeton_audit_write_failures_total",
			Help: "Total number of usage records that could not be written.",
		}),

		AuditBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jeton_audit_buffer_size",
			Help: "Current number of buffered usage records.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jeton_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jeton_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jeton_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jeton_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DispatchTotal,
		m.ProcessorDuration,
		m.ProviderErrorsTotal,
		m.PointsDeductedTotal,
		m.PointsCreditedTotal,
		m.InsufficientPointsTotal,
		m.AuditWriteFailuresTotal,
		m.AuditBufferSize,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PrometheusHandler serves the registry in the Prometheus text format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(driver string, statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(driver, statFunc))
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// IncDispatch counts one invocation outcome.
func (m *Metrics) IncDispatch(function, outcome string) {
	m.DispatchTotal.WithLabelValues(function, outcome).Inc()
}

// ObserveProcessorDuration records how long a processor ran.
func (m *Metrics) ObserveProcessorDuration(function string, seconds float64) {
	m.ProcessorDuration.WithLabelValues(function).Observe(seconds)
}

// IncProviderError counts a failed provider call.
func (m *Metrics) IncProviderError(provider, class string) {
	m.ProviderErrorsTotal.WithLabelValues(provider, class).Inc()
}

// AddPointsDeducted adds n to the deducted points counter.
func (m *Metrics) AddPointsDeducted(function string, n int64) {
	m.PointsDeductedTotal.WithLabelValues(function).Add(float64(n))
}

// AddPointsCredited adds n to the credited points counter.
func (m *Metrics) AddPointsCredited(txType string, n int64) {
	m.PointsCreditedTotal.WithLabelValues(txType).Add(float64(n))
}

// IncInsufficientPoints counts a rejected charge.
func (m *Metrics) IncInsufficientPoints(function string) {
	m.InsufficientPointsTotal.WithLabelValues(function).Inc()
}

// AddAuditWriteFailures adds n dropped usage records.
func (m *Metrics) AddAuditWriteFailures(n int) {
	m.AuditWriteFailuresTotal.Add(float64(n))
}

// SetAuditBufferSize reports the number of buffered usage records.
func (m *Metrics) SetAuditBufferSize(n int) {
	m.AuditBufferSize.Set(float64(n))
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}
