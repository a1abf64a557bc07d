package scheduler

import (
	"github.com/networkservicemesh/dnsdiffuzz/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// RoundDuration observes wallclock time per RunRound call, adapted from
// the teacher's RequestDuration histogram shape.
var RoundDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: metrics.Namespace,
	Subsystem: "scheduler",
	Name:      "round_duration_seconds",
	Buckets:   prometheus.DefBuckets,
	Help:      "Histogram of wallclock time one scheduling round took.",
})
