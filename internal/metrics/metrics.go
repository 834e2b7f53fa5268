// Package metrics defines the Prometheus instruments exported by the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eufy_bridge"

// Metrics groups every bridge instrument.
type Metrics struct {
	Reconnects     prometheus.Counter
	Connected      prometheus.Gauge
	StreamRequests *prometheus.CounterVec
	Recordings     *prometheus.CounterVec
	MediaBytes     *prometheus.CounterVec
	ChunksDropped  prometheus.Counter
	Unreachable    prometheus.Counter
	StreamErrors   prometheus.Counter
	Phase          prometheus.Gauge
}

// New creates the instruments and registers them on reg. A nil reg leaves
// them unregistered, which tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconnects_total",
			Help: "Connection attempts made after the first.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connected",
			Help: "Whether a hub session is open (1) or not (0).",
		}),
		StreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stream_requests_total",
			Help: "Livestream commands sent, by command.",
		}, []string{"command"}),
		Recordings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "recordings_total",
			Help: "Finalized recordings, by end reason.",
		}, []string{"reason"}),
		MediaBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "media_bytes_total",
			Help: "Bytes written to the encoder, by channel.",
		}, []string{"channel"}),
		ChunksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "chunks_dropped_total",
			Help: "Media chunks that could not be written.",
		}),
		Unreachable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "camera_unreachable_total",
			Help: "Wake cycles abandoned after exhausting retries.",
		}),
		StreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stream_errors_total",
			Help: "Livestream error events received from the hub.",
		}),
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "phase",
			Help: "Recorder phase (0=idle, 1=awaiting stream, 2=recording).",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Reconnects, m.Connected, m.StreamRequests, m.Recordings,
			m.MediaBytes, m.ChunksDropped, m.Unreachable, m.StreamErrors, m.Phase,
		)
	}
	return m
}
