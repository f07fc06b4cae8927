package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cuppa_requests_total",
			Help: "Total number of chat requests processed",
		},
		[]string{"intent", "from_cache"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "cuppa_stage_duration_seconds",
			Help: "Pipeline stage duration in seconds",
		},
		[]string{"stage"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cuppa_cache_hits_total",
			Help: "Cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cuppa_cache_misses_total",
			Help: "Cache misses by tier",
		},
		[]string{"tier"},
	)

	WorkflowViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cuppa_workflow_violations_total",
			Help: "Agent responses that skipped a required tool call",
		},
	)

	FallbackCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cuppa_fallback_total",
			Help: "Fallback activations by kind",
		},
		[]string{"kind"},
	)

	ProviderRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cuppa_provider_retries_total",
			Help: "Agent invocations retried after a transient failure",
		},
	)
)

// Cache tier label values.
const (
	TierEmbedding = "embedding"
	TierResponse  = "response"
)

// Fallback kind label values.
const (
	FallbackClassify     = "classify"
	FallbackAgentRetry   = "agent_retry"
	FallbackDirectSearch = "direct_search"
)
