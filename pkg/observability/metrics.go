package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Conversation turn metrics
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_turns_total",
			Help: "Total number of conversation turns by modality and outcome",
		},
		[]string{"modality", "status"},
	)

	turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_turn_duration_seconds",
			Help:    "End to end turn duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"modality"},
	)

	streamTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_stream_tokens_total",
			Help: "Total number of streamed token fragments relayed to clients",
		},
	)

	// Provider metrics
	providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_provider_calls_total",
			Help: "Total number of model provider calls",
		},
		[]string{"provider", "operation", "status"},
	)

	providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_provider_call_duration_seconds",
			Help:    "Model provider call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "operation"},
	)

	// Summary pipeline metrics
	summaryJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_summary_jobs_total",
			Help: "Total number of summarization jobs processed",
		},
		[]string{"status"},
	)

	summaryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_summary_queue_depth",
			Help: "Number of summarization jobs waiting in the queue",
		},
	)

	// Connection metrics
	activeStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_active_streams",
			Help: "Number of server-sent event streams currently open",
		},
	)
)

// RecordHTTPRequest records an HTTP request observation
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTurn records a completed conversation turn
func RecordTurn(modality, status string, duration time.Duration) {
	turnsTotal.WithLabelValues(modality, status).Inc()
	turnDuration.WithLabelValues(modality).Observe(duration.Seconds())
}

// RecordStreamToken counts one relayed token fragment
func RecordStreamToken() {
	streamTokensTotal.Inc()
}

// RecordProviderCall records a model provider call
func RecordProviderCall(provider, operation, status string, duration time.Duration) {
	providerCallsTotal.WithLabelValues(provider, operation, status).Inc()
	providerCallDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordSummaryJob records the outcome of a summarization job
func RecordSummaryJob(status string) {
	summaryJobsTotal.WithLabelValues(status).Inc()
}

// SetSummaryQueueDepth sets the current summarization queue depth
func SetSummaryQueueDepth(depth int) {
	summaryQueueDepth.Set(float64(depth))
}

// IncActiveStreams increments the open stream gauge
func IncActiveStreams() {
	activeStreams.Inc()
}

// DecActiveStreams decrements the open stream gauge
func DecActiveStreams() {
	activeStreams.Dec()
}

// MetricsHandler returns the Prometheus metrics HTTP handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
