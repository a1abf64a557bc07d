package corpus

import (
	"testing"

	"github.com/google/uuid"
	"github.com/networkservicemesh/dnsdiffuzz/internal/coverage"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func newCase(t *testing.T) *fuzzcase.Case {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion("0000.fuzz.", dns.TypeA)
	return &fuzzcase.Case{UUID: uuid.New(), ClientQuery: dnsutil.FromMsg(m)}
}

func TestAdmitRejectsNonCorpusWorthy(t *testing.T) {
	c := New()
	admitted := c.Admit(newCase(t), coverage.MergeResult{}, coverage.Delta{})
	require.False(t, admitted)
	require.Equal(t, 0, c.Len())
}

func TestAdmitAcceptsNewEdges(t *testing.T) {
	c := New()
	fc := newCase(t)
	admitted := c.Admit(fc, coverage.MergeResult{NewEdges: 3}, coverage.Delta{})
	require.True(t, admitted)
	require.Equal(t, 1, c.Len())
	require.Equal(t, 3, c.Ranked()[0].NoveltyScore)
}

func TestRankedOrdersByNoveltyThenWireSize(t *testing.T) {
	c := New()
	small := newCase(t)
	big := newCase(t)
	big.CacheChecks = append(big.CacheChecks, small.ClientQuery.Clone())

	c.Admit(small, coverage.MergeResult{NewEdges: 1}, coverage.Delta{})
	c.Admit(big, coverage.MergeResult{NewEdges: 1}, coverage.Delta{})

	ranked := c.Ranked()
	require.Len(t, ranked, 2)
	require.Equal(t, small.UUID, ranked[0].Case.UUID)
	require.Equal(t, big.UUID, ranked[1].Case.UUID)
}

func TestReplaceSwapsEntryPreservingRankAndSelectionCount(t *testing.T) {
	c := New()
	original := newCase(t)
	c.Admit(original, coverage.MergeResult{NewEdges: 5}, coverage.Delta{Size: 2, Indices: []int{0}, Values: []uint8{1}})
	c.RecordSelection(original.UUID)
	c.RecordSelection(original.UUID)

	minimized := newCase(t)
	newDelta := coverage.Delta{Size: 2, Indices: []int{0}, Values: []uint8{1}}
	ok := c.Replace(original.UUID, minimized, newDelta)
	require.True(t, ok)

	require.Equal(t, 1, c.Len())
	ranked := c.Ranked()
	require.Equal(t, minimized.UUID, ranked[0].Case.UUID)
	require.Equal(t, 5, ranked[0].NoveltyScore)
	require.Equal(t, 2, ranked[0].SelectionCount)
	require.Equal(t, newDelta, ranked[0].Delta)
}

func TestReplaceReportsFalseForUnknownID(t *testing.T) {
	c := New()
	ok := c.Replace(uuid.New(), newCase(t), coverage.Delta{})
	require.False(t, ok)
}

func TestSelectParentErrorsOnEmptyPool(t *testing.T) {
	_, err := SelectParent(New())
	require.Error(t, err)
}

func TestSelectParentFavorsNeverPicked(t *testing.T) {
	c := New()
	favored := newCase(t)
	worn := newCase(t)
	c.Admit(favored, coverage.MergeResult{NewEdges: 1}, coverage.Delta{})
	c.Admit(worn, coverage.MergeResult{NewEdges: 1}, coverage.Delta{})
	for i := 0; i < 50; i++ {
		c.RecordSelection(worn.UUID)
	}

	favoredWins := 0
	for i := 0; i < 20; i++ {
		picked, err := SelectParent(c)
		require.NoError(t, err)
		if picked.UUID == favored.UUID {
			favoredWins++
		}
	}
	require.Greater(t, favoredWins, 10)
}
