package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qin_bridge_requests_total",
		Help: "HTTP requests handled, by route and status code",
	}, []string{"route", "status"})

	Forwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qin_bridge_forwards_total",
		Help: "Commands forwarded to the chat backend, by the route that answered",
	}, []string{"route"})

	ForwardLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qin_bridge_forward_latency_seconds",
		Help:    "Time spent waiting for a chat reply",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 240},
	})

	Transcriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qin_bridge_transcriptions_total",
		Help: "Transcriptions, by where the text came from",
	}, []string{"source"})

	TranscriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qin_bridge_transcription_latency_seconds",
		Help:    "Time spent transcribing one recording",
		Buckets: prometheus.DefBuckets,
	})

	AudioSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qin_bridge_audio_duration_seconds",
		Help:    "Duration of received recordings, when it could be probed",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	Feedback = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qin_bridge_feedback_total",
		Help: "Feedback events, by action and source",
	}, []string{"action", "source"})

	RelayReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qin_bridge_relay_reconnects_total",
		Help: "Times the relay subscription was re-established",
	})
)
