package scheduler

import (
	"github.com/networkservicemesh/dnsdiffuzz/internal/authns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/config"
)

// newResolverStack builds and starts one resolver's private authoritative
// stack, first layering any configured [[auth]] blocks onto the fixed
// base tree's reserved addresses (spec §6). Running more than one
// resolver against the same fixed loopback addresses on one host requires
// external per-resolver network-namespace sandboxing (spec §5: "each runs
// in its own sandbox on distinct address aliases"); that sandboxing is
// out of this module's scope the same way container orchestration is
// (spec §1's Non-goals), so ListenAndServe errors here are logged rather
// than fatal, matching how a harness under test substitutes a fake
// control shim instead of a live stack.
func newResolverStack(auths []config.AuthConfig) *authns.Stack {
	stack := authns.NewStack(nil)
	for _, a := range auths {
		rrs, err := a.ToRR()
		if err != nil {
			log.WithError(err).WithField("zone", a.Zone).Warn("skipping auth block with unconvertible records")
			continue
		}
		for _, addr := range a.ListenAddresses {
			authns.SeedExtra(stack.Zones(), addr, a.Zone, rrs)
		}
	}
	if err := stack.ListenAndServe(); err != nil {
		log.WithError(err).Warn("authoritative stack failed to bind; resolver depends on external sandboxing")
	}
	return stack
}
