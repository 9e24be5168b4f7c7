package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Node metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cascade_nodes_total",
			Help: "Total number of nodes by kind and reported status",
		},
		[]string{"kind", "status"},
	)

	NodesOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cascade_nodes_online",
			Help: "Number of worker nodes currently classified online",
		},
	)

	// Allocation metrics
	AllocationsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cascade_allocations_total",
			Help: "Current number of allocations by status",
		},
		[]string{"status"},
	)

	AllocationsDispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cascade_allocations_dispatched_total",
			Help: "Total number of allocations ever dispatched",
		},
	)

	ClaimLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cascade_claim_latency_seconds",
			Help:    "Time taken to service a claim-task request",
			Buckets: prometheus.DefBuckets,
		},
	)

	ClaimEmptyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cascade_claim_empty_total",
			Help: "Total number of claim-task requests that found no pending work",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cascade_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Dispatcher / cron metrics
	DispatchCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cascade_dispatch_cycles_total",
			Help: "Total number of execute_dispatch invocations",
		},
	)

	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cascade_dispatch_duration_seconds",
			Help:    "Time taken for one execute_dispatch cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reclaimer metrics
	ReclaimDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cascade_reclaim_duration_seconds",
			Help:    "Time taken for a reclaim sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReclaimCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cascade_reclaim_cycles_total",
			Help: "Total number of reclaim sweeps completed",
		},
	)

	AllocationsReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cascade_allocations_reclaimed_total",
			Help: "Total number of allocations transitioned to timeout",
		},
	)

	// Worker agent metrics
	WorkerHeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_worker_heartbeats_total",
			Help: "Total number of heartbeats sent by the worker agent, by outcome",
		},
		[]string{"outcome"},
	)

	WorkerTasksExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_worker_tasks_executed_total",
			Help: "Total number of allocations executed by the worker agent, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(NodesOnline)
	prometheus.MustRegister(AllocationsTotal)
	prometheus.MustRegister(AllocationsDispatchedTotal)
	prometheus.MustRegister(ClaimLatency)
	prometheus.MustRegister(ClaimEmptyTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(DispatchCyclesTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(ReclaimDuration)
	prometheus.MustRegister(ReclaimCyclesTotal)
	prometheus.MustRegister(AllocationsReclaimedTotal)
	prometheus.MustRegister(WorkerHeartbeatsTotal)
	prometheus.MustRegister(WorkerTasksExecutedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
