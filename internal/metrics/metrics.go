// Package metrics registers the bot's Prometheus collectors. They are served
// on /metrics by internal/server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Updates counts inbound Telegram updates by kind (command, button, other).
	Updates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpg_updates_total",
			Help: "Inbound Telegram updates by kind",
		},
		[]string{"kind"},
	)

	// Denials counts rate limiter refusals by reason.
	Denials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpg_ratelimit_denials_total",
			Help: "Actions refused by the rate limiter, by reason",
		},
		[]string{"kind", "reason"},
	)

	// Executions counts remote calls by operation (run, share) and outcome
	// (ok, compile_error, error).
	Executions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpg_executions_total",
			Help: "Snippet executions by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpg_execution_duration_seconds",
			Help:    "Duration of remote snippet executions",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"operation"},
	)

	SweptSources = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rpg_sources_swept_total",
		Help: "Expired snippets deleted by the sweep",
	})

	// ProtocolErrors counts callback payloads that failed to parse.
	ProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rpg_callback_protocol_errors_total",
		Help: "Malformed callback payloads",
	})

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpg_broadcast_messages_total",
			Help: "Broadcast deliveries by result",
		},
		[]string{"result"},
	)

	// SettingsCache counts settings lookups by result (hit, miss).
	SettingsCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpg_settings_cache_lookups_total",
			Help: "Settings cache lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpg_http_requests_total",
			Help: "HTTP requests served, by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpg_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
