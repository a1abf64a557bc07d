package mutate

import (
	"math/rand"

	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
)

// Minimize drops one script entry or cache check from a clone of c
// (spec §4.6: "remove a single record or script entry"). It only
// produces the candidate; deciding whether the candidate's coverage
// still matches the parent's and keeping or discarding it on that basis
// needs a harness run, which is the scheduler's job, not this package's
// (spec §4.6: "keep the child only if coverage is preserved").
func Minimize(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	child := c.Clone()

	var removable []func()
	if len(child.ServerResponses) > 0 {
		removable = append(removable, func() {
			idx := r.Intn(len(child.ServerResponses))
			child.ServerResponses = append(child.ServerResponses[:idx], child.ServerResponses[idx+1:]...)
		})
	}
	if len(child.CacheChecks) > 0 {
		removable = append(removable, func() {
			idx := r.Intn(len(child.CacheChecks))
			child.CacheChecks = append(child.CacheChecks[:idx], child.CacheChecks[idx+1:]...)
		})
	}
	if len(removable) == 0 {
		return child, nil
	}
	removable[r.Intn(len(removable))]()
	return child, nil
}
