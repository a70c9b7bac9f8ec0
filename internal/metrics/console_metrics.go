package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All metrics are low-cardinality (no console_id/file/query labels)

var (
	// UpstreamRequestsTotal counts requests issued to the analysis and search services
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_upstream_requests_total",
			Help: "Requests issued to external collaborators by outcome",
		},
		[]string{"collaborator", "outcome"},
	)

	// UpstreamLatency tracks round-trip time to the collaborators
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_upstream_latency_ms",
			Help:    "Collaborator round-trip latency in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
		},
		[]string{"collaborator"},
	)

	// StaleResponsesTotal counts responses discarded because a newer request superseded them
	StaleResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_stale_responses_total",
			Help: "Responses ignored because their generation was superseded",
		},
		[]string{"component"},
	)

	// SessionOutcomesTotal counts terminal phases reached by upload and search sessions
	SessionOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_session_outcomes_total",
			Help: "Terminal phases applied to sessions",
		},
		[]string{"component", "phase"},
	)

	// DroppedRecordsTotal counts malformed search records excluded from results
	DroppedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_search_records_dropped_total",
			Help: "Malformed search result records excluded from display",
		},
	)

	ConsolesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "console_sessions_active",
			Help: "Operator consoles currently held in the registry",
		},
	)

	SubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "console_ws_subscribers_active",
			Help: "Websocket subscribers currently attached to consoles",
		},
	)

	AnomalyEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_anomaly_events_total",
			Help: "Anomaly events handed to the publisher by result",
		},
		[]string{"result"},
	)

	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_ratelimit_decisions_total",
			Help: "Rate limit checks by scope and result (allowed, blocked, fail_open)",
		},
		[]string{"scope", "result"},
	)

	// HTTPRequestsTotal uses the chi route pattern, never the raw path
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_http_requests_total",
			Help: "Console API requests by route, method and status class",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_http_request_duration_seconds",
			Help:    "Console API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func RecordUpstream(collaborator, outcome string, elapsed time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(collaborator, outcome).Inc()
	UpstreamLatency.WithLabelValues(collaborator).Observe(float64(elapsed.Milliseconds()))
}

func RecordStale(component string) {
	StaleResponsesTotal.WithLabelValues(component).Inc()
}

func RecordOutcome(component, phase string) {
	SessionOutcomesTotal.WithLabelValues(component, phase).Inc()
}

func RecordDroppedRecords(count int) {
	if count > 0 {
		DroppedRecordsTotal.Add(float64(count))
	}
}

func RecordAnomalyEvent(result string) {
	AnomalyEventsTotal.WithLabelValues(result).Inc()
}

func RecordRateLimit(scope, result string) {
	RateLimitDecisionsTotal.WithLabelValues(scope, result).Inc()
}

func RecordHTTP(route, method string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, fmt.Sprintf("%dxx", status/100)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
