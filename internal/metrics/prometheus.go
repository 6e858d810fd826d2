package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestCount counts HTTP requests
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	// RunCount counts detection runs by outcome
	RunCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlap_runs_total",
			Help: "Total number of overlap detection runs",
		},
		[]string{"status"},
	)

	// StageDuration measures each pipeline stage
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "overlap_stage_duration_seconds",
			Help:    "Overlap detection stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"stage"},
	)

	// PairsRanked records how many document pairs each run produced
	PairsRanked = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "overlap_ranked_pairs",
			Help:    "Number of ranked document pairs per run",
			Buckets: prometheus.ExponentialBuckets(1, 10, 8),
		},
	)

	// FingerprintsIngested counts fingerprints stored by the ingest consumer
	FingerprintsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "overlap_fingerprints_ingested_total",
			Help: "Total number of fingerprints ingested",
		},
	)

	// DeadLettered counts stream messages moved to the dead-letter queue
	DeadLettered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "overlap_dead_lettered_total",
			Help: "Total number of stream messages sent to the dead-letter queue",
		},
	)

	// AutoRuns counts runs the ingest consumer started once a corpus settled
	AutoRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlap_auto_runs_total",
			Help: "Total number of runs triggered by settled ingestion",
		},
		[]string{"result"},
	)

	registerOnce sync.Once
)

// InitPrometheus registers all collectors with the default registry
func InitPrometheus() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCount,
			RequestDuration,
			RunCount,
			StageDuration,
			PairsRanked,
			FingerprintsIngested,
			DeadLettered,
			AutoRuns,
		)
	})
}

// ObserveStage records the time spent in a pipeline stage since start
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
