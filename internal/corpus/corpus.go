// Package corpus holds the per-resolver ranked set of admitted fuzz
// cases and the parent-selection policy the mutator draws from (spec
// §4.5). Parent selection is grounded on the teacher's internal/selector
// package, generalized from "pick a DNS upstream client" to "pick a
// corpus entry", weighted inversely by how often an entry has already
// been chosen.
package corpus

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/networkservicemesh/dnsdiffuzz/internal/coverage"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
)

// Entry is one admitted case plus the bookkeeping ranking and selection
// need.
type Entry struct {
	Case           *fuzzcase.Case
	NoveltyScore   int
	SelectionCount int
	Delta          coverage.Delta
}

// Corpus is the admitted-case set for a single resolver's coverage
// frontier (spec §4.5: "Corpus is ranked per resolver").
type Corpus struct {
	mu         sync.Mutex
	resolverID string
	entries    map[uuid.UUID]*Entry
}

// New creates an empty, unlabeled corpus.
func New() *Corpus {
	return &Corpus{entries: make(map[uuid.UUID]*Entry)}
}

// NewNamed creates an empty corpus that reports its NoveltyScore
// observations under resolverID.
func NewNamed(resolverID string) *Corpus {
	c := New()
	c.resolverID = resolverID
	return c
}

// Admit adds c if merge reports it corpus-worthy, scoring it by the
// novelty it contributed (spec §4.5: "new > 0 or any bucket increased").
// delta is kept on the entry so a later Minimize candidate can be checked
// against the coverage this case actually hit (spec §4.6: "keep the
// child only if coverage is preserved"). It reports whether c was
// admitted.
func (co *Corpus) Admit(c *fuzzcase.Case, merge coverage.MergeResult, delta coverage.Delta) bool {
	if !merge.IsCorpusWorthy() {
		return false
	}
	score := merge.NewEdges + merge.BucketNovelty
	co.mu.Lock()
	co.entries[c.UUID] = &Entry{Case: c, NoveltyScore: score, Delta: delta}
	co.mu.Unlock()
	NoveltyScore.WithLabelValues(co.resolverID).Observe(float64(score))
	return true
}

// Replace swaps oldID's admitted entry for a minimized candidate once its
// coverage-preserving re-execution has confirmed it still hits what the
// original entry hit, retaining the original's rank and selection
// history (spec §4.6).
func (co *Corpus) Replace(oldID uuid.UUID, c *fuzzcase.Case, delta coverage.Delta) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	old, ok := co.entries[oldID]
	if !ok {
		return false
	}
	delete(co.entries, oldID)
	co.entries[c.UUID] = &Entry{Case: c, NoveltyScore: old.NoveltyScore, SelectionCount: old.SelectionCount, Delta: delta}
	return true
}

// Len reports the number of admitted cases.
func (co *Corpus) Len() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	return len(co.entries)
}

// Ranked returns every admitted entry ordered by descending novelty
// score, ascending wire size as a tiebreaker (spec §4.5).
func (co *Corpus) Ranked() []*Entry {
	co.mu.Lock()
	out := make([]*Entry, 0, len(co.entries))
	for _, e := range co.entries {
		out = append(out, e)
	}
	co.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].NoveltyScore != out[j].NoveltyScore {
			return out[i].NoveltyScore > out[j].NoveltyScore
		}
		return out[i].Case.WireSize() < out[j].Case.WireSize()
	})
	return out
}

// RecordSelection increments id's selection count, feeding the next
// round's inverse-weighted parent pick.
func (co *Corpus) RecordSelection(id uuid.UUID) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if e, ok := co.entries[id]; ok {
		e.SelectionCount++
	}
}
