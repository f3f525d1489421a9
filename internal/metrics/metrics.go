package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)

	// OptimizeRuns counts finished optimization runs by strategy and outcome
	OptimizeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimize_runs_total", Help: "Optimization runs by strategy and outcome."},
		[]string{"strategy", "outcome"},
	)
	// OptimizeDuration records optimization wall time in seconds
	OptimizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimize_duration_seconds", Help: "Optimization run duration in seconds.", Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 120, 300}},
		[]string{"strategy"},
	)
	// VolumeUtilization tracks achieved cargo volume utilization per run
	VolumeUtilization = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimize_volume_utilization", Help: "Volume utilization of finished runs.", Buckets: prometheus.LinearBuckets(0.1, 0.1, 10)},
		[]string{"strategy"},
	)
	// WeightUtilization tracks achieved payload utilization per run
	WeightUtilization = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimize_weight_utilization", Help: "Weight utilization of finished runs.", Buckets: prometheus.LinearBuckets(0.1, 0.1, 10)},
		[]string{"strategy"},
	)
	// Generations counts genetic generations executed across all runs
	Generations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "optimize_generations_total", Help: "Genetic generations executed."},
	)
	// SSEClients gauges currently connected plan event stream clients
	SSEClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sse_clients", Help: "Connected plan event stream clients."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OptimizeRuns)
		Registry.MustRegister(OptimizeDuration)
		Registry.MustRegister(VolumeUtilization)
		Registry.MustRegister(WeightUtilization)
		Registry.MustRegister(Generations)
		Registry.MustRegister(SSEClients)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
