// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_messages_sent_total",
			Help: "Total messages persisted",
		},
		[]string{"kind"},
	)

	ReactionsChanged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_reactions_changed_total",
			Help: "Total reaction toggles applied",
		},
	)

	ConversationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_conversations_created_total",
			Help: "Total conversations created",
		},
		[]string{"type"}, // "direct" or "group"
	)

	SessionsRevoked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_sessions_revoked_total",
			Help: "Total session tokens revoked on logout",
		},
	)

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_realtime_events_total",
			Help: "Total realtime events emitted",
		},
		[]string{"kind"},
	)
)
