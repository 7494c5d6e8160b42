package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	relayFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocbridge",
			Subsystem: "relay",
			Name:      "frames_total",
			Help:      "Frames relayed through the bridge.",
		},
		[]string{"direction"},
	)
	relayBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocbridge",
			Subsystem: "relay",
			Name:      "bytes_total",
			Help:      "Payload bytes relayed through the bridge.",
		},
		[]string{"direction"},
	)
	relayDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocbridge",
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped (malformed, oversize, or paused).",
		},
		[]string{"direction", "reason"},
	)
	linkReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ocbridge",
			Subsystem: "serial",
			Name:      "reconnects_total",
			Help:      "Serial link reconnect attempts after loss.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(relayFrames, relayBytes, relayDropped, linkReconnects)
	})
}

func RecordRelay(direction string, bytes int) {
	RegisterMetrics()
	relayFrames.WithLabelValues(direction).Inc()
	relayBytes.WithLabelValues(direction).Add(float64(bytes))
}

func RecordDrop(direction, reason string) {
	RegisterMetrics()
	relayDropped.WithLabelValues(direction, reason).Inc()
}

func RecordReconnect() {
	RegisterMetrics()
	linkReconnects.Inc()
}
