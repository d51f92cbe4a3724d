// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_api_stream_duration_seconds",
			Help:    "Total time taken for streams in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 15, 20, 25, 30, 40, 50, 75, 100, 150, 200, 350, 400, 500, 600},
		},
		[]string{"model", "channel"},
	)

	TimeToFirstToken = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_api_time_to_first_token_seconds",
			Help:    "Time to first token in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 40, 50, 75, 100},
		},
		[]string{"model", "channel"},
	)

	CompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_completion_tokens_total",
			Help: "Total number of tokens streamed to clients",
		},
		[]string{"model", "channel"},
	)

	TokensPerSecond = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_api_tokens_per_second",
			Help:    "Tokens per second",
			Buckets: []float64{1, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 60, 70, 80},
		},
		[]string{"model", "channel"},
	)

	StreamCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_stream_count_total",
			Help: "Streams by terminal state (done, error, cancelled)",
		},
		[]string{"model", "channel", "state"},
	)

	InFlightStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_api_inflight_streams",
			Help: "Current live in-flight registry entries",
		},
	)

	DuplicateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_duplicate_rejections_total",
			Help: "Requests rejected because the request_id was already in flight",
		},
		[]string{"channel"},
	)

	SweptEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_api_swept_inflight_entries_total",
			Help: "Orphaned in-flight entries removed by the sweeper",
		},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_error_count",
			Help: "Error count",
		},
		[]string{"model", "channel", "code"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
