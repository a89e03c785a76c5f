// Package metrics exposes Prometheus collectors for deploys, remote hosts
// and the HTTP API.
package metrics

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

const namespace = "panelship"

// Metrics holds every collector. A nil *Metrics records nothing, so
// components can take one optionally.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration   *prometheus.HistogramVec
	deploysTotal    *prometheus.CounterVec
	pushesTotal     *prometheus.CounterVec
	jobsQueued      prometheus.Gauge
	hostUp          *prometheus.GaugeVec
	hostLatency     *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each stage of a deploy, build or push",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"operation", "stage", "result"}),
		deploysTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deploys_total",
			Help:      "Completed deployment pipeline runs",
		}, []string{"result", "kind"}),
		pushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_pushes_total",
			Help:      "Completed image pushes to remote hosts",
		}, []string{"result"}),
		jobsQueued: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatcher_jobs_queued",
			Help:      "Jobs waiting in the dispatcher queue",
		}),
		hostUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_host_up",
			Help:      "Whether the last check of a remote host succeeded",
		}, []string{"host"}),
		hostLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_host_check_duration_seconds",
			Help:      "Duration of remote host checks",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// =============================================================================
// Recorders
// =============================================================================

// ObserveStage records one stage of operation (deploy, build or push).
func (m *Metrics) ObserveStage(operation, stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(operation, stage, result(err)).Observe(d.Seconds())
}

// DeployFinished counts a pipeline run. kind is the error kind, empty on success.
func (m *Metrics) DeployFinished(kind string, err error) {
	if m == nil {
		return
	}
	if err == nil {
		kind = ""
	}
	m.deploysTotal.WithLabelValues(result(err), kind).Inc()
}

// PushFinished counts an image push.
func (m *Metrics) PushFinished(err error) {
	if m == nil {
		return
	}
	m.pushesTotal.WithLabelValues(result(err)).Inc()
}

// SetQueued sets the dispatcher queue depth.
func (m *Metrics) SetQueued(n int) {
	if m == nil {
		return
	}
	m.jobsQueued.Set(float64(n))
}

// ObserveHost records a remote host check.
func (m *Metrics) ObserveHost(host string, d time.Duration, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.hostUp.WithLabelValues(host).Set(v)
	m.hostLatency.WithLabelValues(host).Observe(d.Seconds())
}

// ForgetHost drops the series of a host that no longer exists.
func (m *Metrics) ForgetHost(host string) {
	if m == nil {
		return
	}
	m.hostUp.DeleteLabelValues(host)
	m.hostLatency.DeleteLabelValues(host)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// =============================================================================
// HTTP Middleware
// =============================================================================

// Middleware is a chi middleware that records HTTP request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		// Use the chi route pattern if available, else the raw path.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		m.requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush lets streaming handlers (MCP) flush through the middleware.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
