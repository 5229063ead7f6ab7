package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Query-level metrics
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuqa_queries_total",
			Help: "Total number of queries handled by the orchestrator",
		},
		[]string{"outcome"}, // success, no_documents, no_evidence, error
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docuqa_query_duration_seconds",
			Help:    "End-to-end query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// Per-stage latency
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docuqa_stage_duration_seconds",
			Help:    "Duration of a single pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // understanding, retrieval, reasoning, verification
	)

	// Fallback-level distribution
	fallbackLevelTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuqa_reasoning_fallback_total",
			Help: "Number of answers produced at each reasoning fallback level",
		},
		[]string{"level"}, // full, simplified, direct_extraction, apology
	)

	// Cache hit rate
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuqa_cache_lookups_total",
			Help: "Total number of response cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	// Retrieval source mix
	retrievalSourceHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuqa_retrieval_source_hits_total",
			Help: "Number of evidence entries contributed by each retrieval sub-search",
		},
		[]string{"source"}, // vector, keyword, section
	)

	verificationConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docuqa_verification_confidence",
			Help:    "Distribution of verification confidence scores",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	activeQueries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docuqa_active_queries",
			Help: "Number of queries currently in flight",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the pipeline's Prometheus collectors. Safe to call
// more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			queriesTotal,
			queryDuration,
			stageDuration,
			fallbackLevelTotal,
			cacheLookupsTotal,
			retrievalSourceHits,
			verificationConfidence,
			activeQueries,
		)
	})
}

// MetricsHandler returns an HTTP handler serving Prometheus-format metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordQuery records the terminal outcome and total duration of one query.
func RecordQuery(outcome string, duration time.Duration) {
	queriesTotal.WithLabelValues(outcome).Inc()
	queryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStage records how long a single pipeline stage took.
func RecordStage(stage string, duration time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordFallbackLevel records which reasoning fallback level produced the
// final answer.
func RecordFallbackLevel(level string) {
	fallbackLevelTotal.WithLabelValues(level).Inc()
}

// RecordCacheLookup records whether a response cache lookup hit or missed.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordRetrievalSourceHits records how many evidence entries a retrieval
// sub-search contributed before fusion.
func RecordRetrievalSourceHits(source string, count int) {
	retrievalSourceHits.WithLabelValues(source).Add(float64(count))
}

// RecordVerificationConfidence records a verification confidence sample.
func RecordVerificationConfidence(confidence float64) {
	verificationConfidence.Observe(confidence)
}

// SetActiveQueries sets the in-flight query gauge.
func SetActiveQueries(count int) {
	activeQueries.Set(float64(count))
}
