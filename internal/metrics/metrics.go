package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Query pipeline metrics
	QueriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_queries_processed_total",
			Help: "Total number of queries processed, by intent and terminal route",
		},
		[]string{"intent", "route"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medassist_query_duration_seconds",
			Help:    "End-to-end query processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_workflow_state_transitions_total",
			Help: "Total number of workflow state transitions",
		},
		[]string{"from", "to"},
	)

	RetryAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medassist_execution_retries_total",
			Help: "Total number of structured execution retries",
		},
	)

	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_fallbacks_total",
			Help: "Total number of semantic fallbacks, by reason",
		},
		[]string{"reason"},
	)

	Escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medassist_escalations_total",
			Help: "Total number of queries escalated to a human operator",
		},
	)

	// Session store metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medassist_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "medassist_sessions_active",
			Help: "Current number of in-memory sessions",
		},
	)

	SessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medassist_sessions_evicted_total",
			Help: "Total number of sessions removed by TTL eviction",
		},
	)

	SessionMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medassist_session_messages_total",
			Help: "Total number of messages appended to sessions",
		},
	)

	SessionSnapshotErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medassist_session_snapshot_errors_total",
			Help: "Total number of failed session snapshot writes",
		},
	)

	// Graph store metrics
	GraphQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_graph_queries_total",
			Help: "Total number of graph store queries",
		},
		[]string{"status"},
	)

	GraphQueryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medassist_graph_query_latency_seconds",
			Help:    "Graph store query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Vector DB metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_vector_search_total",
			Help: "Total number of vector searches",
		},
		[]string{"collection", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medassist_vector_search_latency_seconds",
			Help:    "Vector search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_llm_requests_total",
			Help: "Total number of LLM service requests, by operation",
		},
		[]string{"operation", "status"},
	)

	LLMRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medassist_llm_request_latency_seconds",
			Help:    "LLM service request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medassist_embedding_latency_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Event log metrics
	EventLogWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassist_eventlog_writes_total",
			Help: "Total number of turn records written to the event log",
		},
		[]string{"status"},
	)

	EventLogDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medassist_eventlog_dropped_total",
			Help: "Total number of turn records dropped due to a full queue",
		},
	)
)

// RecordQuery records metrics for a completed query.
func RecordQuery(intent, route string, durationSeconds float64) {
	QueriesProcessed.WithLabelValues(intent, route).Inc()
	QueryDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RecordStateTransition records a single workflow state transition.
func RecordStateTransition(from, to string) {
	StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordFallback records a fallback routing decision.
func RecordFallback(reason string) {
	Fallbacks.WithLabelValues(reason).Inc()
}

// RecordGraphQuery records graph store query metrics.
func RecordGraphQuery(status string, durationSeconds float64) {
	GraphQueries.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		GraphQueryLatency.Observe(durationSeconds)
	}
}

// RecordVectorSearch records vector search metrics.
func RecordVectorSearch(collection, status string, durationSeconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	if durationSeconds > 0 {
		VectorSearchLatency.WithLabelValues(collection).Observe(durationSeconds)
	}
}

// RecordLLMRequest records LLM service request metrics.
func RecordLLMRequest(operation, status string, durationSeconds float64) {
	LLMRequests.WithLabelValues(operation, status).Inc()
	if durationSeconds > 0 {
		LLMRequestLatency.WithLabelValues(operation).Observe(durationSeconds)
	}
}

// RecordEmbedding records embedding request metrics.
func RecordEmbedding(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}
