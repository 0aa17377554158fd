package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons recorded by RecordDropped.
const (
	ReasonEncode       = "encode"
	ReasonParse        = "parse"
	ReasonHandler      = "handler"
	ReasonTruncated    = "truncated"
	ReasonIncomplete   = "incomplete"
	ReasonUnknown      = "unknown"
	ReasonNoDest       = "no_destination"
	ReasonRateLimited  = "rate_limited"
	ReasonFrameTooBig  = "frame_too_large"
	ReasonDisconnected = "disconnected"
)

var (
	registerOnce sync.Once

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "madigan",
			Subsystem: "bridge",
			Name:      "frames_total",
			Help:      "Frames moved over the peer connection.",
		},
		[]string{"direction"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "madigan",
			Subsystem: "bridge",
			Name:      "commands_total",
			Help:      "Inbound commands by kind.",
		},
		[]string{"kind"},
	)
	dropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "madigan",
			Subsystem: "bridge",
			Name:      "dropped_total",
			Help:      "Events and commands dropped without delivery.",
		},
		[]string{"reason"},
	)
	connects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "madigan",
			Subsystem: "bridge",
			Name:      "connects_total",
			Help:      "Connection attempts by result.",
		},
		[]string{"result"},
	)
	peerMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "madigan",
			Subsystem: "peer",
			Name:      "messages_total",
			Help:      "Messages handled by the peer server.",
		},
		[]string{"direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(frames, commands, dropped, connects, peerMessages)
	})
}

// RecordFrame counts one frame; direction is "in" or "out".
func RecordFrame(direction string) {
	RegisterMetrics()
	frames.WithLabelValues(direction).Inc()
}

func RecordCommand(kind string) {
	RegisterMetrics()
	commands.WithLabelValues(kind).Inc()
}

func RecordDropped(reason string) {
	RegisterMetrics()
	dropped.WithLabelValues(reason).Inc()
}

func RecordConnect(success bool) {
	RegisterMetrics()
	result := "ok"
	if !success {
		result = "error"
	}
	connects.WithLabelValues(result).Inc()
}

func RecordPeerMessage(direction string) {
	RegisterMetrics()
	peerMessages.WithLabelValues(direction).Inc()
}
