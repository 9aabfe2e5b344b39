package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the bulk-operations service.
// Metrics are organized by subsystem: runs, items, analysis probes, and backend
// API requests. All counters and histograms are registered via promauto with
// the given registerer.
type Metrics struct {
	// RunsStarted counts bulk runs started, labeled by run kind.
	RunsStarted *prometheus.CounterVec

	// RunsCompleted counts bulk runs that finished successfully, labeled by kind.
	RunsCompleted *prometheus.CounterVec

	// RunsFailed counts bulk runs that failed, labeled by kind.
	RunsFailed *prometheus.CounterVec

	// RunsCancelled counts bulk runs cancelled by the caller, labeled by kind.
	RunsCancelled *prometheus.CounterVec

	// RunDuration observes end-to-end run duration in seconds, labeled by kind.
	RunDuration *prometheus.HistogramVec

	// ItemsExecuted counts work items that reached a terminal state, labeled
	// by kind and terminal status.
	ItemsExecuted *prometheus.CounterVec

	// ChunksExecuted counts executor chunks awaited to completion, labeled by kind.
	ChunksExecuted *prometheus.CounterVec

	// AnalysisProbes counts result probes issued during the analysis phase,
	// labeled by outcome (hit, miss, stale).
	AnalysisProbes *prometheus.CounterVec

	// PagesFetched counts list pages fetched by the paginated enumerator,
	// labeled by endpoint.
	PagesFetched *prometheus.CounterVec

	// BackendRequests counts requests to the DocRouter backend API, labeled by
	// endpoint and status class.
	BackendRequests *prometheus.CounterVec

	// BackendRequestDuration observes backend request duration in seconds,
	// labeled by endpoint.
	BackendRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registerer. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a new Metrics instance registered with reg.
// Tests pass a private registry to avoid duplicate-registration panics.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of bulk runs started",
		}, []string{"kind"}),
		RunsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of bulk runs completed successfully",
		}, []string{"kind"}),
		RunsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of bulk runs that failed",
		}, []string{"kind"}),
		RunsCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_cancelled_total",
			Help:      "Total number of bulk runs cancelled",
		}, []string{"kind"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of bulk runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"kind"}),
		ItemsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_executed_total",
			Help:      "Total number of work items that reached a terminal state",
		}, []string{"kind", "status"}),
		ChunksExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_executed_total",
			Help:      "Total number of executor chunks awaited to completion",
		}, []string{"kind"}),
		AnalysisProbes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_probes_total",
			Help:      "Total number of LLM result probes during analysis",
		}, []string{"outcome"}),
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of list pages fetched by the enumerator",
		}, []string{"endpoint"}),
		BackendRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of requests to the DocRouter backend API",
		}, []string{"endpoint", "status"}),
		BackendRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of DocRouter backend API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}
