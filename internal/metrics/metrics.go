package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArchiveAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raincouver_archive_api_calls_total",
			Help: "Total Open-Meteo archive API calls",
		},
		[]string{"location", "status"},
	)

	ArchiveAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raincouver_archive_api_latency_seconds",
			Help:    "Open-Meteo archive API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"location"},
	)

	ArchiveCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raincouver_archive_cache_hits_total",
			Help: "Archive windows served from the response cache",
		},
		[]string{"location"},
	)

	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raincouver_observations_ingested_total",
			Help: "Total daily observations successfully ingested",
		},
		[]string{"location"},
	)

	FoldsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raincouver_cv_folds_completed_total",
			Help: "Cross-validation folds fit and scored",
		},
		[]string{"model"},
	)

	FoldFitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raincouver_cv_fold_fit_seconds",
			Help:    "Time to fit one cross-validation fold",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"model"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raincouver_pipeline_runs_total",
			Help: "Pipeline stage runs by outcome",
		},
		[]string{"stage", "outcome"},
	)
)

// WriteTextfile dumps the default registry in the node-exporter textfile
// collector format. Batch runs call it once on exit.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
