// Package metrics defines the Prometheus collectors for queries, model calls
// and categorization batches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Athena queries by mode (ctas, direct, ddl) and terminal state.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_athena_queries_total",
			Help: "Athena query executions by mode and terminal state.",
		},
		[]string{"mode", "state"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_athena_query_duration_seconds",
			Help:    "Wall time from submission to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s → ~17min
		},
		[]string{"mode"},
	)

	DataScannedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_athena_data_scanned_bytes_total",
			Help: "Bytes scanned by Athena queries.",
		},
	)

	// Chat-completion requests by model and result.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_llm_requests_total",
			Help: "Chat-completion requests by model and status.",
		},
		[]string{"model", "status"},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_llm_tokens_total",
			Help: "Tokens consumed by model and direction (input|output).",
		},
		[]string{"model", "direction"},
	)

	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_llm_cost_usd_total",
			Help: "Estimated spend in USD by model.",
		},
		[]string{"model"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_llm_request_duration_seconds",
			Help:    "Duration of chat-completion requests.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"model"},
	)

	// Categorization batches by result (ok | error).
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_categorize_batches_total",
			Help: "Categorization batches processed by result.",
		},
		[]string{"result"},
	)

	BatchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "report_categorize_batches_in_flight",
			Help: "Categorization batches currently dispatched.",
		},
	)
)

// ObserveDuration records the time since start on a histogram vector.
func ObserveDuration(h *prometheus.HistogramVec, start time.Time, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

func IncQuery(mode, state string) {
	QueriesTotal.WithLabelValues(mode, state).Inc()
}

func AddScanned(bytes int64) {
	if bytes > 0 {
		DataScannedBytes.Add(float64(bytes))
	}
}

func IncLLMRequest(model, status string) {
	LLMRequestsTotal.WithLabelValues(model, status).Inc()
}

// AddLLMUsage records token counts and cost for one completed request.
func AddLLMUsage(model string, input, output int, costUSD float64) {
	LLMTokensTotal.WithLabelValues(model, "input").Add(float64(input))
	LLMTokensTotal.WithLabelValues(model, "output").Add(float64(output))
	if costUSD > 0 {
		LLMCostUSD.WithLabelValues(model).Add(costUSD)
	}
}

func IncBatch(result string) {
	BatchesTotal.WithLabelValues(result).Inc()
}
