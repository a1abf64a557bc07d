// Package metrics holds the Prometheus namespace shared by every
// package's metric vectors and a single registration point for the
// coordinator binary, adapted from the teacher's metrics.go which
// registered its collectors from setup.go's OnStartup hook.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace is the Prometheus namespace every collector in this module
// registers under, renamed from the teacher's "coredns".
const Namespace = "dnsdiffuzz"

// MustRegisterAll registers every collector passed to it against reg,
// skipping one that is already registered (AlreadyRegisteredError) and
// panicking on any other registration error.
// The coordinator calls this once at startup with every package's
// exported vectors.
func MustRegisterAll(reg prometheus.Registerer, collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			panic(err)
		}
	}
}
