package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Router metrics
	RouterDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ikaris_router_decisions_total",
			Help: "Total number of router decisions by dispatch target",
		},
		[]string{"target"},
	)

	// Research loop metrics
	ResearchEpisodes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ikaris_research_episodes_total",
			Help: "Total number of research episodes started",
		},
	)

	FusionPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ikaris_fusion_passes_total",
			Help: "Total number of evidence fusion passes",
		},
	)

	FusionEvidenceKept = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ikaris_fusion_evidence_kept",
			Help:    "Evidence items retained after dedup/rank/truncate per pass",
			Buckets: []float64{0, 1, 2, 4, 6, 8, 10},
		},
	)

	JudgeParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ikaris_judge_parse_failures_total",
			Help: "Total number of confidence judge outputs that failed to parse",
		},
	)

	LoopFinalizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ikaris_loop_finalizations_total",
			Help: "Total number of loop finalizations by reason",
		},
		[]string{"reason"}, // confidence | safety_valve
	)

	// History compression metrics
	CompressionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ikaris_compression_events_total",
			Help: "Total number of history compression events by outcome",
		},
		[]string{"outcome"}, // skipped | compressed | error
	)

	// Retrieval adapter metrics
	AdapterRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ikaris_adapter_requests_total",
			Help: "Total number of retrieval adapter queries",
		},
		[]string{"adapter", "status"},
	)

	AdapterLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ikaris_adapter_latency_seconds",
			Help:    "Retrieval adapter query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)

	// Batch fetch metrics
	BatchFetchItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ikaris_batch_fetch_items_total",
			Help: "Total number of batch fetch items by outcome",
		},
		[]string{"outcome"}, // new | skipped | error
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ikaris_llm_requests_total",
			Help: "Total number of language model calls",
		},
		[]string{"purpose", "status"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ikaris_llm_latency_seconds",
			Help:    "Language model call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"purpose"},
	)

	LLMTokensUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ikaris_llm_tokens_used",
			Help:    "Tokens used per language model call",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ikaris_sessions_active",
			Help: "Number of sessions with an invocation in flight",
		},
	)

	SessionBusyRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ikaris_session_busy_rejections_total",
			Help: "Total number of requests rejected because the thread was busy",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ikaris_session_cache_hits_total",
			Help: "Total number of session local cache hits",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ikaris_session_cache_misses_total",
			Help: "Total number of session local cache misses",
		},
	)

	// Vector DB metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ikaris_vector_search_total",
			Help: "Total number of vector searches",
		},
		[]string{"collection", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ikaris_vector_search_latency_seconds",
			Help:    "Vector search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ikaris_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ikaris_embedding_latency_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Checkpoint metrics
	CheckpointWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ikaris_checkpoint_writes_total",
			Help: "Total number of checkpoint writes",
		},
		[]string{"status"},
	)
)

// RecordAdapterQuery records one retrieval adapter call.
func RecordAdapterQuery(adapter, status string, durationSeconds float64) {
	AdapterRequests.WithLabelValues(adapter, status).Inc()
	if durationSeconds > 0 {
		AdapterLatency.WithLabelValues(adapter).Observe(durationSeconds)
	}
}

// RecordLLMCall records one language model call.
func RecordLLMCall(purpose, status string, durationSeconds float64, tokens int) {
	LLMRequests.WithLabelValues(purpose, status).Inc()
	if durationSeconds > 0 {
		LLMLatency.WithLabelValues(purpose).Observe(durationSeconds)
	}
	if tokens > 0 {
		LLMTokensUsed.Observe(float64(tokens))
	}
}

// RecordVectorSearchMetrics records vector search metrics.
func RecordVectorSearchMetrics(collection, status string, durationSeconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	if durationSeconds > 0 {
		VectorSearchLatency.WithLabelValues(collection).Observe(durationSeconds)
	}
}

// RecordEmbeddingMetrics records embedding metrics.
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}
