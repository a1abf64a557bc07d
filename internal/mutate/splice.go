package mutate

import (
	"math/rand"

	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
)

// section names one of a case's three independently spliceable parts.
type section int

const (
	sectionClientQuery section = iota
	sectionServerResponses
	sectionCacheChecks
)

// Splice grafts one section of donor onto a clone of base (spec §4.6:
// "take section K from case P and section K from case Q"). It takes two
// cases rather than fitting the single-case Mutation signature, so it is
// not in Catalog; the scheduler calls it directly when it wants a
// cross-case child instead of an in-place mutation.
func Splice(r *rand.Rand, base, donor *fuzzcase.Case) (*fuzzcase.Case, error) {
	child := base.Clone()
	grafted := donor.Clone()

	switch section(r.Intn(3)) {
	case sectionClientQuery:
		child.ClientQuery = grafted.ClientQuery
	case sectionServerResponses:
		child.ServerResponses = grafted.ServerResponses
	case sectionCacheChecks:
		child.CacheChecks = grafted.CacheChecks
	}
	return child, nil
}
