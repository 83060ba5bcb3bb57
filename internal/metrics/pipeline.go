package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "evergreen"

// Ingestion and retrieval metrics.
var (
	DocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents processed by final status",
		},
		[]string{"source", "status"},
	)

	ChunksWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Chunks upserted into the vector index",
		},
	)

	EntitiesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_written_total",
			Help:      "Entities merged into the graph",
		},
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end duration of a single document ingest",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Retrieval pipeline duration",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"synthesized"},
	)

	DegradedStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_steps_total",
			Help:      "Optional retrieval steps that failed and were skipped",
		},
		[]string{"step"}, // rerank, graph, synthesis
	)
)

var pipelineOnce sync.Once

// RegisterPipelineMetrics registers ingestion and retrieval collectors on the default registry.
func RegisterPipelineMetrics() {
	pipelineOnce.Do(func() {
		prometheus.MustRegister(
			DocumentsTotal,
			ChunksWrittenTotal,
			EntitiesWrittenTotal,
			IngestDuration,
			QueryDuration,
			DegradedStepsTotal,
		)
	})
}
