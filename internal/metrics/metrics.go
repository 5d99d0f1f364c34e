package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StationsOnline tracks the number of stations currently connected to the CSMS.
	StationsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_stations_online",
		Help: "The number of simulated stations with an open WebSocket connection.",
	})

	// MessagesSent counts outbound OCPP messages, labeled by OCPP version and action.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_messages_sent_total",
		Help: "Total number of OCPP messages sent to the CSMS.",
	}, []string{"ocpp_version", "action"})

	// MessagesReceived counts inbound OCPP messages, labeled by OCPP version and action.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_messages_received_total",
		Help: "Total number of OCPP messages received from the CSMS.",
	}, []string{"ocpp_version", "action"})

	// CallErrors counts CALLERROR frames by direction (sent/received) and error code.
	CallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_call_errors_total",
		Help: "Total number of CALLERROR frames exchanged with the CSMS.",
	}, []string{"direction", "error_code"})

	// ActiveTransactions tracks the number of charging transactions in progress.
	ActiveTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_active_transactions",
		Help: "The number of charging transactions currently in progress.",
	})

	// OfflineQueueDepth tracks messages buffered while the station is offline.
	OfflineQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_offline_queue_depth",
		Help: "The number of OCPP messages buffered for replay after reconnect.",
	})

	// Reconnects counts WebSocket reconnect attempts, labeled by outcome.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_reconnects_total",
		Help: "Total number of WebSocket reconnect attempts.",
	}, []string{"outcome"})

	// EventsPublished counts the total number of events published to Kafka, labeled by event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_events_published_total",
		Help: "Total number of events published to the message broker.",
	}, []string{"event_type"})

	// CommandsConsumed counts the total number of fleet commands consumed from Kafka, labeled by command name.
	CommandsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_commands_consumed_total",
		Help: "Total number of fleet commands consumed from the message broker.",
	}, []string{"command_name"})

	// CallRoundTripDuration observes the time between sending a CALL and receiving its result, labeled by action.
	CallRoundTripDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simulator_call_round_trip_duration_seconds",
		Help:    "Histogram of CALL round-trip times to the CSMS.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"action"})
)

// RegisterMetrics registers all the defined Prometheus metrics.
// With promauto, registration is automatic; this function is kept for
// symmetry with explicit-registration setups.
func RegisterMetrics() {
}
