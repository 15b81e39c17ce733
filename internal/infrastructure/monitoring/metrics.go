package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Run metrics
	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	RunsActive     prometheus.Gauge
	RunsScheduled  prometheus.Gauge
	RunsAbandoned  prometheus.Counter
	RunsRejected   *prometheus.CounterVec
	TranscriptSize prometheus.Histogram
	LogLimitHits   prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	registry  *prometheus.Registry
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for the JSON API
type MetricsSnapshot struct {
	TotalRequests     int64            `json:"totalRequests"`
	TotalErrors       int64            `json:"totalErrors"`
	TotalRuns         int64            `json:"totalRuns"`
	RunsByOutcome     map[string]int64 `json:"runsByOutcome"`
	ActiveRuns        int64            `json:"activeRuns"`
	ActiveConnections int64            `json:"activeConnections"`
	UptimeSeconds     float64          `json:"uptimeSeconds"`
}

// NewMetrics creates a collector with its own registry, so several
// instances can coexist in one process
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
		snapshot:  MetricsSnapshot{RunsByOutcome: make(map[string]int64)},

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scratchpad_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scratchpad_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scratchpad_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scratchpad_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Run metrics
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scratchpad_runs_total",
				Help: "Completed runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scratchpad_run_duration_seconds",
				Help:    "Wall-clock run duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		RunsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scratchpad_runs_active",
				Help: "Runs currently executing",
			},
		),
		RunsScheduled: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scratchpad_runs_scheduled",
				Help: "Debounced runs waiting to start",
			},
		),
		RunsAbandoned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scratchpad_runs_abandoned_total",
				Help: "Runs terminated or superseded before completing",
			},
		),
		RunsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scratchpad_runs_rejected_total",
				Help: "Run requests refused before execution",
			},
			[]string{"reason"},
		),
		TranscriptSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scratchpad_transcript_records",
				Help:    "Records per completed transcript",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 1100},
			},
		),
		LogLimitHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scratchpad_log_limit_hits_total",
				Help: "Runs whose output was truncated",
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scratchpad_websocket_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scratchpad_websocket_messages_total",
				Help: "Total WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "scratchpad_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RunStarted marks a run as executing
func (m *Metrics) RunStarted() {
	m.RunsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveRuns++
	m.mu.Unlock()
}

// RunFinished records a completed run
func (m *Metrics) RunFinished(outcome string, duration time.Duration, records int, limited bool) {
	m.RunsActive.Dec()
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.TranscriptSize.Observe(float64(records))
	if limited {
		m.LogLimitHits.Inc()
	}

	m.mu.Lock()
	m.snapshot.ActiveRuns--
	m.snapshot.TotalRuns++
	m.snapshot.RunsByOutcome[outcome]++
	m.mu.Unlock()
}

// RunAbandoned records a run that ended without a result
func (m *Metrics) RunAbandoned() {
	m.RunsActive.Dec()
	m.RunsAbandoned.Inc()
	m.mu.Lock()
	m.snapshot.ActiveRuns--
	m.mu.Unlock()
}

// RunRejected records a request refused before it started
func (m *Metrics) RunRejected(reason string) {
	m.RunsRejected.WithLabelValues(reason).Inc()
}

// ScheduleAdded counts a debounced run waiting to start
func (m *Metrics) ScheduleAdded() {
	m.RunsScheduled.Inc()
}

// ScheduleRemoved counts a debounced run that started or was superseded
func (m *Metrics) ScheduleRemoved() {
	m.RunsScheduled.Dec()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns a copy of the current values
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.RunsByOutcome = make(map[string]int64, len(m.snapshot.RunsByOutcome))
	for k, v := range m.snapshot.RunsByOutcome {
		snap.RunsByOutcome[k] = v
	}
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
