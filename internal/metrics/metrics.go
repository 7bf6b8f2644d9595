// Package metrics registers the Prometheus collectors shared by the API
// and worker binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished ingestion jobs by outcome:
	// completed | failed | retried.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askpdf_ingest_jobs_total",
		Help: "Ingestion jobs processed, by outcome.",
	}, []string{"outcome"})

	// StageSeconds observes wall time per pipeline stage.
	StageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "askpdf_ingest_stage_seconds",
		Help:    "Duration of ingestion pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage"})

	// ChunksDropped counts chunks skipped because they exceed the
	// embedding input limit.
	ChunksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "askpdf_chunks_dropped_total",
		Help: "Chunks dropped for exceeding the embedding size limit.",
	})

	// QueriesTotal counts query-path requests by outcome:
	// answered | no_context | retrieval_failed | generation_failed.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askpdf_queries_total",
		Help: "RAG queries served, by outcome.",
	}, []string{"outcome"})
)
