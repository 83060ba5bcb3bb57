package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure reasons for embedding_errors_total.
const (
	FailureAPI         = "api_error"
	FailureRateLimited = "rate_limited"
	FailureEmpty       = "empty_response"
)

var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "requests_total",
		Help:      "Embedding provider round-trips by outcome",
	}, []string{"provider", "model", "status"})

	EmbeddingRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "request_duration_seconds",
		Help:      "Latency of successful embedding round-trips",
		Buckets:   prometheus.ExponentialBuckets(0.025, 2.5, 8),
	}, []string{"provider", "model"})

	EmbeddingTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "tokens_total",
		Help:      "Tokens billed by the provider",
	}, []string{"provider", "model", "type"})

	EmbeddingErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "errors_total",
		Help:      "Failed embedding round-trips by reason",
	}, []string{"provider", "model", "error_type"})

	EmbeddingRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "retries_total",
		Help:      "Batches retried after the provider pushed back",
	}, []string{"mode"})

	// EmbeddingCacheTotal is labelled result="hit"|"miss".
	EmbeddingCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "cache_total",
		Help:      "Embedding cache lookups",
	}, []string{"result"})
)

// EmbeddingCall labels one provider round-trip.
type EmbeddingCall struct {
	Provider string
	Model    string
}

// Succeeded records a completed call. Zero token counts are skipped since
// local providers do not report usage.
func (c EmbeddingCall) Succeeded(took time.Duration, promptTokens, totalTokens int) {
	EmbeddingRequestsTotal.WithLabelValues(c.Provider, c.Model, "success").Inc()
	EmbeddingRequestDuration.WithLabelValues(c.Provider, c.Model).Observe(took.Seconds())
	if totalTokens > 0 {
		EmbeddingTokensTotal.WithLabelValues(c.Provider, c.Model, "prompt").Add(float64(promptTokens))
		EmbeddingTokensTotal.WithLabelValues(c.Provider, c.Model, "total").Add(float64(totalTokens))
	}
}

// Failed records a failed call with one of the Failure* reasons.
func (c EmbeddingCall) Failed(reason string) {
	EmbeddingRequestsTotal.WithLabelValues(c.Provider, c.Model, "error").Inc()
	EmbeddingErrorsTotal.WithLabelValues(c.Provider, c.Model, reason).Inc()
}

var embeddingOnce sync.Once

func RegisterEmbeddingMetrics() {
	embeddingOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingRetriesTotal,
			EmbeddingCacheTotal,
		)
	})
}
