package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	stageTranscription = "transcription"
	stageSummary       = "summary"

	resultOK        = "ok"
	resultFailed    = "failed"
	resultSaveError = "save_error"
	resultEmpty     = "empty"
	resultRejected  = "rejected"
)

var (
	stageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetnotes_pipeline_stage_total",
		Help: "Finished pipeline stages by result",
	}, []string{"stage", "result"})
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meetnotes_pipeline_stage_duration_seconds",
		Help:    "Pipeline stage duration",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"stage"})
)

func observe(stage string, start time.Time, result *string) {
	stageTotal.WithLabelValues(stage, *result).Inc()
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
