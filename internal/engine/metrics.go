package engine

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for run status.
const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusTimedOut  = "timed_out"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runlet_engine_runs_total",
			Help: "Total number of script runs that reached the subprocess stage.",
		},
		[]string{"status"},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runlet_engine_cache_hits_total",
			Help: "Total number of invocations answered from the result cache.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runlet_engine_cache_misses_total",
			Help: "Total number of invocations that missed the result cache.",
		},
	)

	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "runlet_engine_active_runs",
			Help: "Number of script subprocesses currently admitted.",
		},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "runlet_engine_run_duration_seconds",
			Help:    "Duration of a single script run from admission to completion, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
	prometheus.MustRegister(activeRuns)
	prometheus.MustRegister(runDuration)

	// Pre-initialize counter label combinations so they appear in /metrics
	// with value 0 from startup, rather than only after first observation.
	for _, status := range []string{statusSucceeded, statusFailed, statusTimedOut} {
		runsTotal.WithLabelValues(status)
	}
}
