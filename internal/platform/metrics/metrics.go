// Package metrics declares the Prometheus collectors for the forwarding pipeline.
// Collectors register on the default registry at init.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Input
	LinesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "amplisend_lines_total",
			Help: "Non-empty input lines read",
		},
	)

	DecompressedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "amplisend_decompressed_bytes_total",
			Help: "Bytes produced by the decompressor",
		},
	)

	// Normalization
	EventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "amplisend_events_total",
			Help: "Events normalized and queued for sending",
		},
	)

	EventsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amplisend_events_skipped_total",
			Help: "Invalid lines skipped, by reason",
		},
		[]string{"reason"},
	)

	// Sending
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amplisend_batches_total",
			Help: "Batches transmitted, by outcome",
		},
		[]string{"outcome"},
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "amplisend_send_duration_seconds",
			Help:    "Duration of one batch POST",
			Buckets: prometheus.DefBuckets,
		},
	)

	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "amplisend_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the inter-send interval",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	// Runs
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amplisend_runs_total",
			Help: "Pipeline runs, by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amplisend_notifications_total",
			Help: "Notification messages handled, by transport",
		},
		[]string{"transport"},
	)
)

// Outcome label values
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Outcome maps an error to an outcome label
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Handler serves the default registry
func Handler() http.Handler { return promhttp.Handler() }
