package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "soapscribe"

var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs, labeled by final status and error kind.",
		},
		[]string{"status", "error_kind"},
	)

	PipelineDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end pipeline latency from upload to response (seconds).",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"status"},
	)

	GenerationCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Total number of calls to the generation backend, labeled by task and outcome.",
		},
		[]string{"task", "outcome"},
	)

	GenerationLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Latency of a single generation call (seconds).",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"task"},
	)

	UploadsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_swept_total",
			Help:      "Total number of expired uploads removed by the background sweeper.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PipelineRunsTotal,
		PipelineDurationSeconds,
		GenerationCallsTotal,
		GenerationLatencySeconds,
		UploadsSweptTotal,
	)
}
