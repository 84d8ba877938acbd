package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Chat pipeline
	ChatRequestsTotal *prometheus.CounterVec

	// Tuition API
	TuitionAPIRequestsTotal   *prometheus.CounterVec
	TuitionAPIDurationSeconds *prometheus.HistogramVec
	TokenRefreshTotal         *prometheus.CounterVec

	// LLM classifier
	LLMRequestsTotal   *prometheus.CounterVec
	LLMDurationSeconds *prometheus.HistogramVec

	// Rate limiter metrics
	RateLimiterDropped    *prometheus.CounterVec
	RateLimiterActiveKeys *prometheus.GaugeVec

	// Singleflight metrics
	SingleflightDedupTotal *prometheus.CounterVec

	// Message store
	StoreOperationsTotal *prometheus.CounterVec

	// Websocket streams
	WSConnections prometheus.Gauge
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		ChatRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuitionchat_chat_requests_total",
				Help: "Total number of processed chat messages by routed stage and intent",
			},
			[]string{"stage", "intent"}, // stage: clarify, api, confirm_pay, not_found, error, unknown, no_balance, failed
		),

		TuitionAPIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuitionchat_tuition_api_requests_total",
				Help: "Total number of Tuition API requests by endpoint and status",
			},
			[]string{"endpoint", "status"}, // status: HTTP code or transport_error
		),

		TuitionAPIDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tuitionchat_tuition_api_duration_seconds",
				Help:    "Tuition API request duration in seconds by endpoint",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15}, // up to the 15s client timeout
			},
			[]string{"endpoint"}, // endpoint: tuition, unpaid, payments, login
		),

		TokenRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuitionchat_token_refresh_total",
				Help: "Total number of admin token refreshes by result",
			},
			[]string{"result"}, // result: success, error
		),

		LLMRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuitionchat_llm_requests_total",
				Help: "Total number of LLM classifier calls by provider and result",
			},
			[]string{"provider", "result"}, // result: success, error, invalid, rate_limited
		),

		LLMDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tuitionchat_llm_duration_seconds",
				Help:    "LLM classifier call duration in seconds by provider",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider"},
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuitionchat_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter"}, // limiter: chat, llm
		),

		RateLimiterActiveKeys: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tuitionchat_rate_limiter_active_keys",
				Help: "Number of keys currently tracked by a keyed rate limiter",
			},
			[]string{"limiter"},
		),

		SingleflightDedupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuitionchat_singleflight_dedup_total",
				Help: "Total number of deduplicated requests (requests that waited instead of executing)",
			},
			[]string{"module"}, // module: token
		),

		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuitionchat_store_operations_total",
				Help: "Total number of message store operations by backend, operation and result",
			},
			[]string{"backend", "op", "result"}, // result: success, error
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tuitionchat_ws_connections",
				Help: "Number of open message stream websocket connections",
			},
		),
	}
}

// RecordChat records a processed chat message.
func (m *Metrics) RecordChat(stage, intent string) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(stage, intent).Inc()
}

// RecordTuitionAPI records a Tuition API call.
func (m *Metrics) RecordTuitionAPI(endpoint, status string, duration float64) {
	if m == nil {
		return
	}
	m.TuitionAPIRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.TuitionAPIDurationSeconds.WithLabelValues(endpoint).Observe(duration)
}

// RecordTokenRefresh records an admin login attempt.
func (m *Metrics) RecordTokenRefresh(result string) {
	if m == nil {
		return
	}
	m.TokenRefreshTotal.WithLabelValues(result).Inc()
}

// RecordLLM records a classifier call.
func (m *Metrics) RecordLLM(provider, result string, duration float64) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(provider, result).Inc()
	if duration > 0 {
		m.LLMDurationSeconds.WithLabelValues(provider).Observe(duration)
	}
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiter string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiter).Inc()
}

// SetRateLimiterActiveKeys sets the tracked key count of a limiter.
func (m *Metrics) SetRateLimiterActiveKeys(limiter string, n int) {
	if m == nil {
		return
	}
	m.RateLimiterActiveKeys.WithLabelValues(limiter).Set(float64(n))
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(module string) {
	if m == nil {
		return
	}
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordStoreOp records a message store operation.
func (m *Metrics) RecordStoreOp(backend, op string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(backend, op, result).Inc()
}

// WSConnected adjusts the open websocket gauge by delta.
func (m *Metrics) WSConnected(delta int) {
	if m == nil {
		return
	}
	m.WSConnections.Add(float64(delta))
}
