package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "helpers"

// Metrics holds the service collectors on a private registry. All methods
// are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	sessionsCreated prometheus.Counter
	sessionsRetired *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	connectFailures prometheus.Counter

	navAttempts *prometheus.CounterVec
	navResults  *prometheus.CounterVec
	navDuration prometheus.Histogram

	screenshots *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"method", "route"}),
		sessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "browser", Name: "sessions_created_total",
			Help: "Browser sessions created.",
		}),
		sessionsRetired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "browser", Name: "sessions_retired_total",
			Help: "Browser sessions shut down, by reason.",
		}, []string{"reason"}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "browser", Name: "sessions_active",
			Help: "Browser sessions currently alive (0 or 1).",
		}),
		connectFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "browser", Name: "connect_failures_total",
			Help: "Failed browser launches or connections.",
		}),
		navAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "navigation", Name: "attempts_total",
			Help: "Navigation attempts by outcome.",
		}, []string{"outcome"}),
		navResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "navigation", Name: "results_total",
			Help: "Navigation results: ok, degraded, timeout, error.",
		}, []string{"result"}),
		navDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "navigation", Name: "duration_seconds",
			Help:    "Time spent in a navigation including retries.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		screenshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "screenshots", Name: "captured_total",
			Help: "Diagnostic screenshot captures by result.",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionRetired(reason string) {
	if m == nil {
		return
	}
	m.sessionsRetired.WithLabelValues(reason).Inc()
	m.sessionsActive.Dec()
}

func (m *Metrics) ConnectFailed() {
	if m == nil {
		return
	}
	m.connectFailures.Inc()
}

// NavAttempt counts one navigation attempt; outcome is success, timeout or failed.
func (m *Metrics) NavAttempt(outcome string) {
	if m == nil {
		return
	}
	m.navAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NavFinished(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.navResults.WithLabelValues(result).Inc()
	m.navDuration.Observe(d.Seconds())
}

func (m *Metrics) ScreenshotCaptured(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.screenshots.WithLabelValues(result).Inc()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Middleware records request count and latency labelled by the chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
