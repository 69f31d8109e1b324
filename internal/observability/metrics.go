// Package observability provides Prometheus metrics for the query and
// indexing paths.
package observability

import "github.com/prometheus/client_golang/prometheus"

// QueryBuckets covers end-to-end query latencies from 50ms to the 10s
// request ceiling.
var QueryBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

var (
	// RequestsTotal counts HTTP requests by method, route, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_request_duration_seconds",
			Help:    "Request duration",
			Buckets: QueryBuckets,
		},
		[]string{"method", "route"},
	)

	// QueriesTotal counts answered queries by mode and outcome.
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_queries_total",
			Help: "Queries by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// RetrievedUnits records how many units retrieval returned per global query.
	RetrievedUnits = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docqa_retrieved_units",
			Help:    "Units retrieved per global query",
			Buckets: []float64{0, 1, 2, 3, 5, 7, 10},
		},
	)

	// IndexRunsTotal counts reindex runs by final status.
	IndexRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_index_runs_total",
			Help: "Reindex runs by status",
		},
		[]string{"status"},
	)

	// IndexedUnitsTotal counts units written to the store across all runs.
	IndexedUnitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_indexed_units_total",
			Help: "Units written to the vector store",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the per-IP limiter.
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		QueriesTotal,
		RetrievedUnits,
		IndexRunsTotal,
		IndexedUnitsTotal,
		RateLimitRejectedTotal,
	)
}
