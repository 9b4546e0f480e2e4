package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts finished queries by terminal path.
	// Labels: outcome (cache_hit, answered, no_results, failed, timeout)
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragvisor",
			Subsystem: "rag",
			Name:      "queries_total",
			Help:      "Total number of questions answered, by outcome",
		},
		[]string{"outcome"},
	)

	// QueryDuration tracks end-to-end Ask latency.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragvisor",
			Subsystem: "rag",
			Name:      "query_duration_seconds",
			Help:      "Duration of questions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// ChunksEmbedded counts chunks embedded and stored by ingestion.
	ChunksEmbedded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragvisor",
			Subsystem: "rag",
			Name:      "chunks_embedded_total",
			Help:      "Total number of chunks embedded and stored",
		},
	)

	// SourceFailures counts sources that failed to ingest.
	// Labels: kind (upload, folder, url)
	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragvisor",
			Subsystem: "rag",
			Name:      "source_failures_total",
			Help:      "Total number of sources that failed to ingest",
		},
		[]string{"kind"},
	)
)
