// Package observability exposes the Prometheus metrics of the messaging core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vetchat"

var (
	// MessagesSent counts send attempts.
	// Labels: result (ok, or the error code returned in the ack)
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "sent_total",
		Help:      "Send attempts by result",
	}, []string{"result"})

	// SendDuration measures the whole pipeline, from validation to fan-out.
	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "send_duration_seconds",
		Help:      "Message pipeline latency in seconds",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	// Deliveries counts the delivery decision taken for each stored message.
	// Labels: path (live, notification, echo)
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "deliveries_total",
		Help:      "Delivery paths taken for stored messages",
	}, []string{"path"})

	// BestEffortFailures counts side effects that failed after the message was stored.
	// Labels: step (touch, notification, fanout, read_event)
	BestEffortFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "best_effort_failures_total",
		Help:      "Failed best-effort side effects of the pipeline",
	}, []string{"step"})

	// MessagesRead counts messages stamped by read receipts.
	MessagesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "read_total",
		Help:      "Messages marked as read",
	})

	// ConversationsCreated counts pairs that exchanged a first message or were started explicitly.
	ConversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "conversations",
		Name:      "created_total",
		Help:      "Conversations created by the resolver",
	})

	// OnlineUsers is refreshed by the presence reporter.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "online_users",
		Help:      "Users with at least one live connection",
	})

	// LiveConnections is refreshed by the presence reporter.
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "connections",
		Help:      "Live connections across all users",
	})

	// ConnectionsRefused counts handshakes rejected before registration.
	// Labels: reason (authentication, upgrade)
	ConnectionsRefused = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "connections_refused_total",
		Help:      "Live connections refused at handshake",
	}, []string{"reason"})
)
