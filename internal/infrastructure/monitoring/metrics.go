package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatgate"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Pool metrics
	AcquireTotal        *prometheus.CounterVec
	AcquireWait         *prometheus.HistogramVec
	WarmTotal           *prometheus.CounterVec
	WarmDuration        prometheus.Histogram
	ReleaseTotal        *prometheus.CounterVec
	InteractionTotal    *prometheus.CounterVec
	InteractionDuration prometheus.Histogram
	Sessions            *prometheus.GaugeVec

	// Gateway metrics
	CompletionsTotal   *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
	StageDuration      *prometheus.HistogramVec
	CacheLookups       *prometheus.CounterVec

	// gRPC metrics
	GRPCCalls    *prometheus.CounterVec
	GRPCDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests    int64   `json:"total_requests"`
	TotalErrors      int64   `json:"total_errors"`
	Completions      int64   `json:"completions"`
	CompletionErrors int64   `json:"completion_errors"`
	CacheHits        int64   `json:"cache_hits"`
	WSConnections    int64   `json:"ws_connections"`
	AvgCompletionSec float64 `json:"avg_completion_seconds"`
	UptimeSeconds    float64 `json:"uptime_seconds"`

	completionSeconds float64
}

var (
	latencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}
	sizeBuckets    = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
)

// NewMetrics creates a collector backed by its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   latencyBuckets,
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"method", "path"},
		),

		// Pool metrics
		AcquireTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "acquire_total",
				Help:      "Session acquisitions by result",
			},
			[]string{"result"},
		),
		AcquireWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "acquire_wait_seconds",
				Help:      "Time spent waiting for a session",
				Buckets:   latencyBuckets,
			},
			[]string{"result"},
		),
		WarmTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "warm_total",
				Help:      "Session warm-ups by result",
			},
			[]string{"result"},
		),
		WarmDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "warm_duration_seconds",
				Help:      "Session warm-up duration",
				Buckets:   latencyBuckets,
			},
		),
		ReleaseTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "release_total",
				Help:      "Session releases by outcome",
			},
			[]string{"outcome"},
		),
		InteractionTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "interactions_total",
				Help:      "Site interactions by result kind",
			},
			[]string{"result"},
		),
		InteractionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "interaction_duration_seconds",
				Help:      "Site interaction duration",
				Buckets:   latencyBuckets,
			},
		),
		Sessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "sessions",
				Help:      "Sessions per lifecycle state",
			},
			[]string{"state"},
		),

		// Gateway metrics
		CompletionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "completions_total",
				Help:      "Chat completions by model, mode and final state",
			},
			[]string{"model", "stream", "state"},
		),
		CompletionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "completion_duration_seconds",
				Help:      "End-to-end chat completion duration",
				Buckets:   latencyBuckets,
			},
			[]string{"state"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each request stage",
				Buckets:   latencyBuckets,
			},
			[]string{"stage"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "cache_lookups_total",
				Help:      "Reply cache lookups by result",
			},
			[]string{"result"},
		),

		// gRPC metrics
		GRPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grpc_calls_total",
				Help:      "Total number of gRPC calls",
			},
			[]string{"method", "code"},
		),
		GRPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "grpc_duration_seconds",
				Help:      "gRPC call duration in seconds",
				Buckets:   latencyBuckets,
			},
			[]string{"method"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry every metric is registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordAcquire implements pool.Metrics
func (m *Metrics) RecordAcquire(wait time.Duration, result string) {
	m.AcquireTotal.WithLabelValues(result).Inc()
	m.AcquireWait.WithLabelValues(result).Observe(wait.Seconds())
}

// RecordWarm implements pool.Metrics
func (m *Metrics) RecordWarm(duration time.Duration, err error) {
	m.WarmTotal.WithLabelValues(resultLabel(err)).Inc()
	m.WarmDuration.Observe(duration.Seconds())
}

// RecordRelease implements pool.Metrics
func (m *Metrics) RecordRelease(outcome string) {
	m.ReleaseTotal.WithLabelValues(outcome).Inc()
}

// RecordInteraction implements pool.Metrics
func (m *Metrics) RecordInteraction(duration time.Duration, err error) {
	m.InteractionTotal.WithLabelValues(resultLabel(err)).Inc()
	m.InteractionDuration.Observe(duration.Seconds())
}

// SetSessionStates implements pool.Metrics
func (m *Metrics) SetSessionStates(counts map[string]int) {
	for state, n := range counts {
		m.Sessions.WithLabelValues(state).Set(float64(n))
	}
}

// RecordCompletion implements gateway.Metrics
func (m *Metrics) RecordCompletion(model string, stream bool, state string, duration time.Duration) {
	m.CompletionsTotal.WithLabelValues(model, boolLabel(stream), state).Inc()
	m.CompletionDuration.WithLabelValues(state).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Completions++
	m.snapshot.completionSeconds += duration.Seconds()
	if state != "completed" {
		m.snapshot.CompletionErrors++
	}
	m.mu.Unlock()
}

// RecordStage implements gateway.Metrics
func (m *Metrics) RecordStage(stage string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordCacheLookup implements gateway.Metrics
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
		m.mu.Lock()
		m.snapshot.CacheHits++
		m.mu.Unlock()
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordGRPCCall records a gRPC call
func (m *Metrics) RecordGRPCCall(method, code string, duration time.Duration) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.WSConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.WSConnections--
	m.mu.Unlock()
}

// Snapshot returns the current values for the JSON stats endpoint
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.Completions > 0 {
		s.AvgCompletionSec = s.completionSeconds / float64(s.Completions)
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
