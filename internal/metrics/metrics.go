// Package metrics defines the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

var (
	// ActiveConnections tracks currently open WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "active_connections",
		Help:      "Number of active WebSocket connections.",
	})

	// MessagesDelivered counts successful writes to client connections.
	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "messages_delivered_total",
		Help:      "Total number of messages delivered to client connections.",
	})

	// ConnectionsRejected counts rejected connection attempts by reason.
	ConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "connections_rejected_total",
		Help:      "Total number of rejected WebSocket connection attempts by reason.",
	}, []string{"reason"})

	// BroadcastRequests counts broadcast submissions by outcome.
	BroadcastRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broadcast",
		Name:      "requests_total",
		Help:      "Total number of broadcast HTTP requests by outcome.",
	}, []string{"outcome"})
)

// Rejection reasons for ConnectionsRejected.
const (
	RejectMissingToken = "missing_token"
	RejectInvalidToken = "invalid_token"
	RejectLimited      = "connection_limit"
)

// Broadcast outcomes for BroadcastRequests.
const (
	OutcomeBulk          = "bulk"
	OutcomeSingle        = "single"
	OutcomeChat          = "chat"
	OutcomeNoop          = "noop"
	OutcomeUnauthorized  = "unauthorized"
	OutcomeMisconfigured = "misconfigured"
	OutcomeError         = "error"
)
