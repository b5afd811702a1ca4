// Package metrics holds the Prometheus collectors updated during a run.
// A one-shot run has no scrape endpoint, so the registry can be dumped to a
// node_exporter textfile at exit.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record outcomes used as the "outcome" label of Records.
const (
	OutcomeFetched       = "fetched"
	OutcomeNormalized    = "normalized"
	OutcomeInvalid       = "invalid"
	OutcomeLoaded        = "loaded"
	OutcomeStorageFailed = "storage_failed"
	OutcomePublished     = "published"
	OutcomePublishFailed = "publish_failed"
)

var (
	// PagesFetched counts pages successfully fetched from the source.
	PagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_etl_pages_fetched_total",
			Help: "Total number of source pages fetched",
		},
	)

	// PageRetries counts retried page fetches after transient errors.
	PageRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_etl_page_retries_total",
			Help: "Total number of page fetch retries after transient errors",
		},
	)

	// PageFetchDuration observes single page fetch attempts.
	PageFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_etl_page_fetch_duration_seconds",
			Help:    "Duration of single page fetch attempts",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// Records counts records by pipeline outcome.
	Records = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_etl_records_total",
			Help: "Total number of records by pipeline outcome",
		},
		[]string{"outcome"},
	)

	// LastRunTimestamp is the unix time the last run finished.
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_etl_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
	)

	// LastRunSuccess is 1 when the last run completed without a fatal error.
	LastRunSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_etl_last_run_success",
			Help: "Whether the last run completed without a fatal error",
		},
	)
)

// WriteTextfile writes the default registry in text exposition format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
