package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login results recorded by AuthMetrics.LoginsTotal
const (
	LoginSuccess        = "success"
	LoginInvalid        = "invalid_credentials"
	LoginError          = "error"
	LoginNoProjects     = "no_projects"
	LoginExpired        = "expired"
	LoginThrottled      = "throttled"
	LoginWebSSORedirect = "websso_redirect"
)

// AuthMetrics holds the Prometheus collectors for the authentication backend.
// A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication flow
	LoginsTotal          *prometheus.CounterVec
	LogoutsTotal         prometheus.Counter
	ProjectSwitchesTotal *prometheus.CounterVec
	RegionSwitchesTotal  prometheus.Counter
	TokenRevocations     *prometheus.CounterVec

	// Identity service calls
	IdentityRequestDuration *prometheus.HistogramVec
	IdentityErrorsTotal     *prometheus.CounterVec

	// Authorized-projects cache
	ProjectCacheHitsTotal   *prometheus.CounterVec
	ProjectCacheMissesTotal *prometheus.CounterVec

	otel *otelInstruments
}

// NewAuthMetrics creates and registers the auth collectors on registry
func NewAuthMetrics(registry prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_auth_http_requests_total",
				Help: "Total number of auth view requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keystone_auth_http_request_duration_seconds",
				Help:    "Auth view request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_auth_logins_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		LogoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keystone_auth_logouts_total",
				Help: "Total number of logouts",
			},
		),
		ProjectSwitchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_auth_project_switches_total",
				Help: "Project switch attempts by status",
			},
			[]string{"status"},
		),
		RegionSwitchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keystone_auth_region_switches_total",
				Help: "Total number of services region switches",
			},
		),
		TokenRevocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_auth_token_revocations_total",
				Help: "Token revocations by status",
			},
			[]string{"status"},
		),
		IdentityRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keystone_auth_identity_request_duration_seconds",
				Help:    "Identity service request duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		IdentityErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_auth_identity_errors_total",
				Help: "Identity service errors by operation and status",
			},
			[]string{"operation", "status"},
		),
		ProjectCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_auth_project_cache_hits_total",
				Help: "Authorized-projects cache hits",
			},
			[]string{"cache_type"},
		),
		ProjectCacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_auth_project_cache_misses_total",
				Help: "Authorized-projects cache misses",
			},
			[]string{"cache_type"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.LogoutsTotal,
		m.ProjectSwitchesTotal,
		m.RegionSwitchesTotal,
		m.TokenRevocations,
		m.IdentityRequestDuration,
		m.IdentityErrorsTotal,
		m.ProjectCacheHitsTotal,
		m.ProjectCacheMissesTotal,
	)

	return m
}

func (m *AuthMetrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
	m.otel.recordLogin(result)
}

func (m *AuthMetrics) RecordLogout() {
	if m == nil {
		return
	}
	m.LogoutsTotal.Inc()
}

func (m *AuthMetrics) RecordProjectSwitch(ok bool) {
	if m == nil {
		return
	}
	m.ProjectSwitchesTotal.WithLabelValues(statusLabel(ok)).Inc()
}

func (m *AuthMetrics) RecordRegionSwitch() {
	if m == nil {
		return
	}
	m.RegionSwitchesTotal.Inc()
}

func (m *AuthMetrics) RecordTokenRevocation(ok bool) {
	if m == nil {
		return
	}
	m.TokenRevocations.WithLabelValues(statusLabel(ok)).Inc()
}

// ObserveIdentityRequest records one identity-service call. status is the
// HTTP status code, or 0 when the request never got a response.
func (m *AuthMetrics) ObserveIdentityRequest(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.IdentityRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if status == 0 || status >= 400 {
		m.IdentityErrorsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	}
	m.otel.observeIdentity(operation, status, duration)
}

func (m *AuthMetrics) RecordProjectCache(cacheType string, hit bool) {
	if m == nil {
		return
	}
	m.otel.recordProjectCache(cacheType, hit)
	if hit {
		m.ProjectCacheHitsTotal.WithLabelValues(cacheType).Inc()
		return
	}
	m.ProjectCacheMissesTotal.WithLabelValues(cacheType).Inc()
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests under a fixed route label
func HTTPMetricsMiddleware(metrics *AuthMetrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler exposes registry in the Prometheus text format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
