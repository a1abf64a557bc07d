package differ

import (
	"github.com/networkservicemesh/dnsdiffuzz/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// DivergenceCount counts diffs found per category, adapted from the
// teacher's RcodeCount (a per-rcode counter on the client response path)
// generalized to a per-category counter on the differ's output.
var DivergenceCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: metrics.Namespace,
	Subsystem: "differ",
	Name:      "divergence_count_total",
	Help:      "Counter of diff items found per category.",
}, []string{"category"})

func recordDiff(items []DiffItem) {
	for _, it := range items {
		DivergenceCount.WithLabelValues(string(it.Category)).Inc()
	}
}
