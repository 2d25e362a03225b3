package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairytale_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome.",
		},
		[]string{"outcome"}, // complete, failed, skipped, persist_error, cancelled
	)
	pipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fairytale_pipeline_run_duration_seconds",
			Help:    "Duration of a full pipeline run.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 9), // 5s .. ~21m
		},
	)
	pipelineFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairytale_pipeline_text_fallback_total",
			Help: "Stories whose text was replaced by fallback content, by reason.",
		},
		[]string{"reason"},
	)
	pipelinePlaceholdersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fairytale_pipeline_image_placeholders_total",
			Help: "Pages that received a placeholder image instead of a generated one.",
		},
	)
	pipelineAbandonedCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairytale_pipeline_abandoned_calls_total",
			Help: "Upstream calls abandoned after their timeout; late results are dropped.",
		},
		[]string{"stage"},
	)
)

// MetricsRecordRun фиксирует завершение прогона.
func MetricsRecordRun(outcome string, seconds float64) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		pipelineRunDuration.Observe(seconds)
	}
}
