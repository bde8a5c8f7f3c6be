// Package metrics holds the Prometheus collectors shared across packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ragent"

var (
	// IngestedChunks counts chunks embedded and written to the index.
	IngestedChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retriever",
			Name:      "ingested_chunks_total",
			Help:      "Total number of chunks embedded and indexed",
		},
	)

	// SkippedFiles counts files skipped during ingestion.
	SkippedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retriever",
			Name:      "skipped_files_total",
			Help:      "Total number of files skipped during ingestion",
		},
	)

	// IndexedDocuments is the current vector store size.
	IndexedDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "retriever",
			Name:      "indexed_documents",
			Help:      "Number of chunks currently held by the vector store",
		},
	)

	// Queries counts agent runs.
	// Labels: outcome (verified, unverified, aborted)
	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "queries_total",
			Help:      "Total number of queries by outcome",
		},
		[]string{"outcome"},
	)

	// QueryDuration tracks end-to-end query latency.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "query_duration_seconds",
			Help:      "Duration of agent runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// Aborts counts runs that ended in the abort state.
	// Labels: reason (timeout, max_iterations)
	Aborts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "aborts_total",
			Help:      "Total number of aborted runs by reason",
		},
		[]string{"reason"},
	)

	// GenerationFallbacks counts runs that fell back to extractive answers
	// after the generator failed.
	GenerationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "generation_fallbacks_total",
			Help:      "Total number of extractive fallbacks after generation failures",
		},
	)

	// MemoryWriteFailures counts task logs that could not be stored.
	MemoryWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "write_failures_total",
			Help:      "Total number of failed task log writes",
		},
	)

	// MemoryPurged counts task logs removed by cleanup.
	MemoryPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "purged_total",
			Help:      "Total number of task logs removed by retention cleanup",
		},
	)
)
