package harness

import "github.com/prometheus/client_golang/prometheus"

// Metrics adapted from the teacher's metrics.go: RequestCount/RcodeCount/
// RequestDuration become per-resolver query accounting here, and
// HealthcheckFailureCount/HealthcheckBrokenCount become
// ResolverDisabledCount, under the "dnsdiffuzz" namespace instead of
// "coredns".
var (
	QueryCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dnsdiffuzz",
		Subsystem: "harness",
		Name:      "query_count_total",
		Help:      "Counter of client queries sent per resolver.",
	}, []string{"resolver"})

	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dnsdiffuzz",
		Subsystem: "harness",
		Name:      "run_duration_seconds",
		Buckets:   prometheus.DefBuckets,
		Help:      "Histogram of the wallclock time one case's run took per resolver.",
	}, []string{"resolver"})

	ResolverDisabledCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dnsdiffuzz",
		Subsystem: "harness",
		Name:      "resolver_disabled_count_total",
		Help:      "Counter of times a resolver was disabled after consecutive crashes or control-protocol failures.",
	}, []string{"resolver"})
)
