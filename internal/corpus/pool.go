package corpus

import (
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
	"github.com/networkservicemesh/dnsdiffuzz/internal/selector"
	"github.com/pkg/errors"
)

// maxSelectionWeight bounds selector.InverseWeights so a never-picked
// entry does not swamp a union spanning many resolvers' corpora, most of
// whose entries already have some selection history.
const maxSelectionWeight = 1000

// SelectParent draws one case from the union of corpora, weighted
// inversely by selection count so rarely-picked parents get attention
// (spec §4.5). Each call snapshots the current ranking and builds a
// fresh weighted selector, since selector.WeightedRand.Pick consumes the
// entry it returns from its own copy.
func SelectParent(corpora ...*Corpus) (*fuzzcase.Case, error) {
	var entries []*Entry
	var owners []*Corpus
	for _, c := range corpora {
		for _, e := range c.Ranked() {
			entries = append(entries, e)
			owners = append(owners, c)
		}
	}
	if len(entries) == 0 {
		return nil, errors.New("corpus: no admitted cases to select a parent from")
	}

	counts := make([]int, len(entries))
	for i, e := range entries {
		counts[i] = e.SelectionCount
	}
	weights := selector.InverseWeights(counts, maxSelectionWeight)

	sel := selector.NewWeightedRandSelector(entries, weights)
	picked := sel.Pick()
	for i, e := range entries {
		if e == picked {
			owners[i].RecordSelection(e.Case.UUID)
			break
		}
	}
	return picked.Case, nil
}
