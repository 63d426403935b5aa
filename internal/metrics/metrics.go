// Package metrics defines the Prometheus instrumentation for the station.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice station hub.
type Metrics struct {
	// Monitor metrics
	ActivityReports  prometheus.Counter
	ActiveSwitches   prometheus.Counter
	ClientsConnected prometheus.Gauge
	ClientsEvicted   prometheus.Counter

	// Dictation pipeline metrics
	FramesProcessed prometheus.Counter
	SpeechSegments  prometheus.Counter
	SamplesDropped  prometheus.Counter

	// Audio ingest metrics
	IngestPackets      prometheus.Counter
	IngestDecodeErrors prometheus.Counter

	// Relay metrics
	RelayPublishes     prometheus.Counter
	RelayPublishErrors prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		ActivityReports: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_activity_reports_total",
			Help: "Total number of client activity reports received",
		}),
		ActiveSwitches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_active_switches_total",
			Help: "Total number of active client changes, including clears",
		}),
		ClientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "station_clients_connected",
			Help: "Current number of clients tracked by the registry",
		}),
		ClientsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_clients_evicted_total",
			Help: "Total number of clients removed by the inactivity sweeper",
		}),
		FramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_audio_frames_processed_total",
			Help: "Total number of full audio frames run through the VAD",
		}),
		SpeechSegments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_speech_segments_total",
			Help: "Total number of detected speech segments",
		}),
		SamplesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_audio_samples_dropped_total",
			Help: "Total number of samples dropped while dictation was off or no client was active",
		}),
		IngestPackets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_ingest_packets_total",
			Help: "Total number of audio packets received by the UDP ingest",
		}),
		IngestDecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_ingest_decode_errors_total",
			Help: "Total number of audio packets that failed to decode",
		}),
		RelayPublishes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_relay_publishes_total",
			Help: "Total number of messages published to the relay channel",
		}),
		RelayPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_relay_publish_errors_total",
			Help: "Total number of relay publish failures or drops",
		}),
	}
}
