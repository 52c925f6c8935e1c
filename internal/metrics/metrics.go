// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Package metrics defines the Prometheus instrumentation for Missionboard.
// Collectors are registered with the default registry via promauto and
// exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestsTotal counts HTTP API requests.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missionboard_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration measures HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "missionboard_api_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// ActiveRequests tracks in-flight HTTP requests.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "missionboard_api_active_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// EventsDispatched counts domain events dispatched through the bus, one
	// per event regardless of how many handlers it reaches.
	// Labels:
	//   - kind: event kind (mission.created, mission.updated, chat.message_posted)
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missionboard_events_dispatched_total",
			Help: "Total number of domain events dispatched",
		},
		[]string{"kind"},
	)

	// ChatMessagesSent counts chat messages accepted and broadcast.
	ChatMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "missionboard_chat_messages_sent_total",
			Help: "Total number of chat messages persisted and broadcast",
		},
	)

	// ChatMessagesDeleted counts chat message deletions.
	ChatMessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "missionboard_chat_messages_deleted_total",
			Help: "Total number of chat messages deleted",
		},
	)

	// BroadcastDrops counts messages dropped because a client's send buffer
	// was full or the broadcast channel saturated.
	BroadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "missionboard_chat_broadcast_drops_total",
			Help: "Total number of broadcast messages dropped",
		},
	)

	// ConnectedClients tracks live websocket connections.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "missionboard_chat_connected_clients",
			Help: "Number of websocket clients currently connected",
		},
	)

	// IdentityCacheOps counts identity cache lookups by outcome.
	// Labels:
	//   - outcome: "hit", "miss", "eviction"
	IdentityCacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missionboard_identity_cache_ops_total",
			Help: "Identity cache operations by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		ActiveRequests.Inc()
	} else {
		ActiveRequests.Dec()
	}
}
