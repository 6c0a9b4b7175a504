package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every inbound surface.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Agent metrics.
var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_commands_total",
			Help: "Commands handled by the orchestrator, by outcome.",
		},
		[]string{"outcome"},
	)

	toolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_tool_executions_total",
			Help: "Tool dispatches, by tool name and status.",
		},
		[]string{"tool", "status"},
	)

	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_provider_request_duration_seconds",
			Help:    "Model provider round-trip latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		commandsTotal, toolExecutionsTotal, providerRequestDuration,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCommand records a handled command with its outcome label.
func ObserveCommand(outcome string) {
	commandsTotal.WithLabelValues(outcome).Inc()
}

// ObserveToolExecution records a single tool dispatch.
func ObserveToolExecution(tool, status string) {
	toolExecutionsTotal.WithLabelValues(tool, status).Inc()
}

// ObserveProviderRequest records a provider round trip for the given auth mode.
func ObserveProviderRequest(mode string, d time.Duration) {
	providerRequestDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
