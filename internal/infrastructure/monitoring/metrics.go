package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Provider RPC metrics
	RPCRequests *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec

	// Navigation metrics
	NavigationDecisions *prometheus.CounterVec
	PhishingRefreshes   *prometheus.CounterVec

	// Tab and session metrics
	TabsActive     prometheus.Gauge
	OriginSessions prometheus.Gauge
	Prompts        *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics creates a new metrics collector registered on reg. A nil
// registerer means the process-wide default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dappbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dappbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dappbridge_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dappbridge_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		RPCRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dappbridge_rpc_requests_total",
				Help: "Provider JSON-RPC requests by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		RPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dappbridge_rpc_duration_seconds",
				Help: "Provider JSON-RPC handling time, prompts included",
				// Account prompts dominate the tail.
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"method"},
		),

		NavigationDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dappbridge_navigation_decisions_total",
				Help: "Navigation guard decisions by action",
			},
			[]string{"action"},
		),
		PhishingRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dappbridge_phishing_refreshes_total",
				Help: "Phishing list refresh attempts by status",
			},
			[]string{"status"},
		),

		TabsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dappbridge_tabs_active",
				Help: "Number of live bridge tabs",
			},
		),
		OriginSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dappbridge_origin_sessions",
				Help: "Number of stored origin sessions",
			},
		),
		Prompts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dappbridge_prompts_total",
				Help: "User prompts shown by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dappbridge_ws_connections",
				Help: "Number of active surface WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dappbridge_ws_messages_total",
				Help: "Total number of surface WebSocket frames",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "dappbridge_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordRPC records one provider request.
func (m *Metrics) RecordRPC(method, outcome string, duration time.Duration) {
	m.RPCRequests.WithLabelValues(method, outcome).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordNavigation records a guard decision.
func (m *Metrics) RecordNavigation(action string) {
	m.NavigationDecisions.WithLabelValues(action).Inc()
}

// RecordPhishingRefresh records a list refresh attempt.
func (m *Metrics) RecordPhishingRefresh(status string) {
	m.PhishingRefreshes.WithLabelValues(status).Inc()
}

// RecordPrompt records a user prompt and how it ended.
func (m *Metrics) RecordPrompt(kind, outcome string) {
	m.Prompts.WithLabelValues(kind, outcome).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetTabsActive sets the number of live tabs
func (m *Metrics) SetTabsActive(count int) {
	m.TabsActive.Set(float64(count))
}

// SetOriginSessions sets the number of stored sessions
func (m *Metrics) SetOriginSessions(count int) {
	m.OriginSessions.Set(float64(count))
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
