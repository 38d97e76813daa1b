package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the relay.
type Metrics struct {
	registry *prometheus.Registry

	// Inbound HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upstream call metrics.
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamRetriesTotal    prometheus.Counter
	UpstreamErrorsTotal     *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metergate_http_requests_total",
			Help: "Total number of inbound HTTP requests.",
		}, []string{"method", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metergate_http_request_duration_seconds",
			Help:    "Inbound HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		UpstreamRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metergate_upstream_requests_total",
			Help: "Total number of upstream API requests, including retries.",
		}, []string{"method", "path", "status_code"}),

		UpstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metergate_upstream_request_duration_seconds",
			Help:    "Upstream API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		UpstreamRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metergate_upstream_retries_total",
			Help: "Total number of upstream retry attempts.",
		}),

		UpstreamErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metergate_upstream_errors_total",
			Help: "Total number of failed upstream calls by error type.",
		}, []string{"error_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metergate_server_start_time_seconds",
			Help: "Unix timestamp of server start.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		m.UpstreamRetriesTotal,
		m.UpstreamErrorsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry for test introspection.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// --- upstream.MetricsRecorder ---

func (m *Metrics) IncUpstreamRequests(method, path string, statusCode int) {
	m.UpstreamRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
}

func (m *Metrics) ObserveUpstreamDuration(method, path string, seconds float64) {
	m.UpstreamRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

func (m *Metrics) IncUpstreamRetries() {
	m.UpstreamRetriesTotal.Inc()
}

func (m *Metrics) IncUpstreamErrors(errorType string) {
	m.UpstreamErrorsTotal.WithLabelValues(errorType).Inc()
}
