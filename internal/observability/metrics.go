package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dronectl",
			Subsystem: "transport",
			Name:      "frames_sent_total",
			Help:      "Frames written to the c2d socket, by frame type.",
		},
		[]string{"type"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dronectl",
			Subsystem: "transport",
			Name:      "frames_received_total",
			Help:      "Frames decoded from the d2c socket, by frame type.",
		},
		[]string{"type"},
	)
	malformedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dronectl",
			Subsystem: "transport",
			Name:      "malformed_frames_total",
			Help:      "Inbound frames dropped as malformed or truncated.",
		},
	)
	retransmits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dronectl",
			Subsystem: "transport",
			Name:      "retransmits_total",
			Help:      "Acknowledged frames retransmitted after an ack wait elapsed.",
		},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dronectl",
			Subsystem: "transport",
			Name:      "deliveries_total",
			Help:      "Acknowledged command outcomes: acked or failed.",
		},
		[]string{"outcome"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dronectl",
			Subsystem: "transport",
			Name:      "handshakes_total",
			Help:      "Port-negotiation attempts, by success.",
		},
		[]string{"success"},
	)
	undecodable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dronectl",
			Subsystem: "protocol",
			Name:      "undecodable_commands_total",
			Help:      "Command payloads dropped: unknown triplet or argument decode failure.",
		},
	)
	commandsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dronectl",
			Subsystem: "protocol",
			Name:      "commands_applied_total",
			Help:      "Decoded commands folded into the state store, by project.",
		},
		[]string{"project"},
	)
	devicesSeen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dronectl",
			Subsystem: "discovery",
			Name:      "devices_seen_total",
			Help:      "Device advertisements accepted into the registry, by device id.",
		},
		[]string{"device_id"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesSent, framesReceived, malformedFrames, retransmits,
			deliveries, handshakes, undecodable, commandsApplied, devicesSeen,
		)
	})
}

func RecordFrameSent(frameType string) {
	RegisterMetrics()
	framesSent.WithLabelValues(frameType).Inc()
}

func RecordFrameReceived(frameType string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(frameType).Inc()
}

func RecordMalformedFrame() {
	RegisterMetrics()
	malformedFrames.Inc()
}

func RecordRetransmit() {
	RegisterMetrics()
	retransmits.Inc()
}

func RecordDelivery(outcome string) {
	RegisterMetrics()
	deliveries.WithLabelValues(outcome).Inc()
}

func RecordHandshake(success bool) {
	RegisterMetrics()
	handshakes.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func RecordUndecodable() {
	RegisterMetrics()
	undecodable.Inc()
}

func RecordCommandApplied(project string) {
	RegisterMetrics()
	commandsApplied.WithLabelValues(project).Inc()
}

func RecordDeviceSeen(deviceID string) {
	RegisterMetrics()
	devicesSeen.WithLabelValues(deviceID).Inc()
}
