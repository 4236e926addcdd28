// Package metrics declares the Prometheus metrics exported by every binary
// in this module.
//
// Naming convention: namespace_subsystem_name
//   - namespace: videochat (application-level grouping)
//   - subsystem: websocket, room, signaling, store, auth, reminder, mail,
//     circuit_breaker, rate_limit
//   - name: specific metric
//
// Gauges track current state, counters track cumulative events, histograms
// track latency distributions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the current number of live WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "videochat",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of non-empty rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "videochat",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms with at least one connection",
	})

	// RoomParticipants tracks live connection count per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "videochat",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of live connections in each room",
	}, []string{"room_id"})

	// FramesRouted tracks signaling frames dispatched by type and outcome.
	FramesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "signaling",
		Name:      "frames_routed_total",
		Help:      "Total inbound frames routed, by frame type and outcome",
	}, []string{"frame_type", "outcome"})

	// MessageProcessingDuration tracks per-frame processing latency.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "videochat",
		Subsystem: "signaling",
		Name:      "frame_processing_seconds",
		Help:      "Time spent routing a single inbound frame",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"frame_type"})

	// CircuitBreakerState tracks circuit breaker state per downstream service.
	// 0 = closed, 1 = open, 2 = half-open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "videochat",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current circuit breaker state (0: closed, 1: open, 2: half-open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks requests rejected by an open circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by a circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks requests rejected by the rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total requests that exceeded a rate limit",
	}, []string{"scope"})

	// StoreOperations tracks message store operations by kind and outcome.
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Total message store operations",
	}, []string{"operation", "status"})

	// StoreOperationDuration tracks message store operation latency.
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "videochat",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of message store operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// AuthProbes tracks ValidateUser outcomes.
	AuthProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "auth",
		Name:      "probes_total",
		Help:      "Total ValidateUser probes, by outcome",
	}, []string{"outcome"})

	// ReminderTicks tracks scheduler tick iterations.
	ReminderTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "reminder",
		Name:      "ticks_total",
		Help:      "Total scheduler ticks completed",
	}, []string{"status"})

	// ReminderSent tracks reminder emails sent, by outcome.
	ReminderSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "reminder",
		Name:      "sent_total",
		Help:      "Total reminders handed to the mail sink, by outcome",
	}, []string{"outcome"})

	// ReminderDue tracks due reminders found per tick.
	ReminderDue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "videochat",
		Subsystem: "reminder",
		Name:      "due_last_tick",
		Help:      "Number of due reminders found in the most recent tick",
	})

	// MailSendTotal tracks mail sink Send outcomes.
	MailSendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videochat",
		Subsystem: "mail",
		Name:      "send_total",
		Help:      "Total mail sink send attempts, by outcome",
	}, []string{"status"})

	// MailSendDuration tracks the latency of a single SMTP session.
	MailSendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "videochat",
		Subsystem: "mail",
		Name:      "send_duration_seconds",
		Help:      "Duration of a single mail sink SMTP session",
		Buckets:   prometheus.DefBuckets,
	})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
