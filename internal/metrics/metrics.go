// Package metrics exposes Prometheus instruments for the utterance pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SynthesisAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lipsync_synthesis_attempts_total",
			Help: "Synthesis attempts by provider, language and outcome",
		},
		[]string{"provider", "language", "outcome"},
	)

	SynthesisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lipsync_synthesis_duration_seconds",
			Help:    "Time spent in a single provider call",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"provider"},
	)

	SynthesisFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lipsync_synthesis_failures_total",
			Help: "Requests for which every provider in the chain failed",
		},
		[]string{"language"},
	)

	StoreFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lipsync_store_failures_total",
			Help: "Synthesized audio that could not be persisted",
		},
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lipsync_extraction_duration_seconds",
			Help:    "Transcode plus forced alignment time",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	ExtractionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lipsync_extraction_failures_total",
			Help: "Extraction failures by kind",
		},
		[]string{"kind"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lipsync_queue_depth",
			Help: "Utterances ready for playback",
		},
	)

	QueueParked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lipsync_queue_parked",
			Help: "Completed utterances waiting on an earlier request",
		},
	)

	PlaybackState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lipsync_playback_state",
			Help: "Synchronizer state (0 idle, 1 loading, 2 playing, 3 ended)",
		},
	)

	UtterancesPlayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lipsync_utterances_played_total",
			Help: "Utterances that left the synchronizer, by outcome",
		},
		[]string{"outcome"},
	)

	FrameTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lipsync_frame_ticks_total",
			Help: "Animation ticks executed",
		},
	)

	FrameClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lipsync_frame_clients",
			Help: "Connected frame stream clients",
		},
	)
)
