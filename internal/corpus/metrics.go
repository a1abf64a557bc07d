package corpus

import (
	"github.com/networkservicemesh/dnsdiffuzz/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// NoveltyScore observes the novelty score of every admitted case,
// adapted from the teacher's RequestDuration histogram (same Observe-a-
// distribution shape, now over novelty rather than latency).
var NoveltyScore = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: metrics.Namespace,
	Subsystem: "corpus",
	Name:      "novelty_score",
	Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
	Help:      "Histogram of novelty scores of admitted corpus entries.",
}, []string{"resolver"})
