package scheduler

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/corpus"
	"github.com/networkservicemesh/dnsdiffuzz/internal/coverage"
	"github.com/networkservicemesh/dnsdiffuzz/internal/differ"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
	"github.com/networkservicemesh/dnsdiffuzz/internal/harness"
	"github.com/stretchr/testify/require"
)

// deterministicRand gives assembleSuite tests a fixed-seed source so
// they're reproducible without needing a particular draw order.
func deterministicRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func makeQueryCase(t *testing.T, name string) *fuzzcase.Case {
	t.Helper()
	q := new(dns.Msg)
	q.SetQuestion(name, dns.TypeA)
	return &fuzzcase.Case{
		UUID:        uuid.New(),
		ClientQuery: dnsutil.FromMsg(q),
	}
}

func newTestScheduler(ids ...string) *Scheduler {
	s := &Scheduler{
		resolvers: make(map[string]*resolverState, len(ids)),
		batchSize: len(ids) + 1,
		seen:      make(map[string]bool),
	}
	for _, id := range ids {
		s.resolvers[id] = &resolverState{
			corpus:   corpus.NewNamed(id),
			frontier: coverage.NewFrontier(0),
		}
		s.order = append(s.order, id)
	}
	return s
}

func TestAssembleSuiteUsesFreshCasesWhenCorporaEmpty(t *testing.T) {
	s := newTestScheduler("a", "b")
	s.rng = deterministicRand()

	suite := s.assembleSuite()
	require.Len(t, suite.Cases, s.batchSize)
	for _, c := range suite.Cases {
		require.Equal(t, uuid.Nil, c.ParentUUID)
	}
}

func TestAssembleSuiteDrawsFromCorpusWhenPopulated(t *testing.T) {
	s := newTestScheduler("a")
	s.rng = deterministicRand()
	s.batchSize = 20

	parent := makeQueryCase(t, "0001.fuzz.")
	admitted := s.resolvers["a"].corpus.Admit(parent, coverage.MergeResult{NewEdges: 1}, coverage.Delta{})
	require.True(t, admitted)

	suite := s.assembleSuite()
	require.Len(t, suite.Cases, s.batchSize)

	var sawMutated bool
	for _, c := range suite.Cases {
		if c.ParentUUID == parent.UUID {
			sawMutated = true
		}
	}
	require.True(t, sawMutated, "expected at least one mutated child of the only corpus entry across %d draws", s.batchSize)
}

func TestSpliceChildGraftsFromTwoIndependentParents(t *testing.T) {
	s := newTestScheduler("a", "b")
	s.rng = deterministicRand()

	parentA := makeQueryCase(t, "0001.fuzz.")
	parentB := makeQueryCase(t, "0002.fuzz.")
	require.True(t, s.resolvers["a"].corpus.Admit(parentA, coverage.MergeResult{NewEdges: 1}, coverage.Delta{}))
	require.True(t, s.resolvers["b"].corpus.Admit(parentB, coverage.MergeResult{NewEdges: 1}, coverage.Delta{}))

	corpora := []*corpus.Corpus{s.resolvers["a"].corpus, s.resolvers["b"].corpus}
	child, ok := s.spliceChild(corpora)
	require.True(t, ok)
	require.Contains(t, []uuid.UUID{parentA.UUID, parentB.UUID}, child.ParentUUID)
}

func TestSpliceChildFailsWithNoAdmittedCases(t *testing.T) {
	s := newTestScheduler("a")
	s.rng = deterministicRand()

	_, ok := s.spliceChild([]*corpus.Corpus{s.resolvers["a"].corpus})
	require.False(t, ok)
}

func TestCoveragePreservedRequiresEveryParentGuardStillHit(t *testing.T) {
	parent := coverage.Delta{Indices: []int{1, 3}, Values: []uint8{1, 2}}

	preserved := coverage.Delta{Indices: []int{1, 3, 5}, Values: []uint8{1, 4, 9}}
	require.True(t, coveragePreserved(parent, preserved))

	regressed := coverage.Delta{Indices: []int{1}, Values: []uint8{1}}
	require.False(t, coveragePreserved(parent, regressed))
}

func TestCoveragePreservedIgnoresZeroedParentGuards(t *testing.T) {
	parent := coverage.Delta{Indices: []int{1}, Values: []uint8{0}}
	candidate := coverage.Delta{}
	require.True(t, coveragePreserved(parent, candidate))
}

func TestTrackFailureDisablesAfterConsecutivePersistentFailures(t *testing.T) {
	s := newTestScheduler("a")
	rs := s.resolvers["a"]

	res := &harness.Result{FailureKind: harness.FailureResolverCrash}
	s.trackFailure(rs, "a", res, harness.ErrResolverCrash)
	require.False(t, rs.disabled)
	require.Equal(t, 1, rs.consecutiveFailures)

	s.trackFailure(rs, "a", res, harness.ErrResolverCrash)
	require.True(t, rs.disabled)
	require.Equal(t, maxConsecutiveFailures, rs.consecutiveFailures)
}

func TestTrackFailureResetsOnSuccess(t *testing.T) {
	s := newTestScheduler("a")
	rs := s.resolvers["a"]

	res := &harness.Result{FailureKind: harness.FailureResolverCrash}
	s.trackFailure(rs, "a", res, harness.ErrResolverCrash)
	require.Equal(t, 1, rs.consecutiveFailures)

	s.trackFailure(rs, "a", &harness.Result{FailureKind: harness.FailureNone}, nil)
	require.Equal(t, 0, rs.consecutiveFailures)
	require.False(t, rs.disabled)
}

func TestTrackFailureIgnoresResponseDeadline(t *testing.T) {
	s := newTestScheduler("a")
	rs := s.resolvers["a"]

	res := &harness.Result{FailureKind: harness.FailureResponseDeadline}
	s.trackFailure(rs, "a", res, harness.ErrCaseTimeout)
	s.trackFailure(rs, "a", res, harness.ErrCaseTimeout)
	require.False(t, rs.disabled, "response-deadline timeouts are routine, not a persistent fault")
	require.Equal(t, 0, rs.consecutiveFailures)
}

func TestFeedCorpusAdmitsCoverageWorthyCases(t *testing.T) {
	s := newTestScheduler("a")
	c := makeQueryCase(t, "0001.fuzz.")
	suite := &fuzzcase.Suite{Cases: []*fuzzcase.Case{c}}

	results := map[string][]*harness.Result{
		"a": {{
			ResolverID:    "a",
			CaseUUID:      c.UUID,
			CoverageDelta: coverage.Delta{Size: 4, Indices: []int{0, 2}, Values: []uint8{1, 1}},
		}},
	}

	admitted := s.feedCorpus([]string{"a"}, suite, results)
	require.Equal(t, 1, admitted)
	require.Equal(t, 1, s.resolvers["a"].corpus.Len())
}

func TestFeedCorpusSkipsNilResults(t *testing.T) {
	s := newTestScheduler("a")
	c := makeQueryCase(t, "0001.fuzz.")
	suite := &fuzzcase.Suite{Cases: []*fuzzcase.Case{c}}

	results := map[string][]*harness.Result{"a": {nil}}
	admitted := s.feedCorpus([]string{"a"}, suite, results)
	require.Equal(t, 0, admitted)
}

func TestFeedCorpusSkipsCrashedResults(t *testing.T) {
	s := newTestScheduler("a")
	c := makeQueryCase(t, "0001.fuzz.")
	suite := &fuzzcase.Suite{Cases: []*fuzzcase.Case{c}}

	results := map[string][]*harness.Result{
		"a": {{
			ResolverID:    "a",
			CaseUUID:      c.UUID,
			FailureKind:   harness.FailureResolverCrash,
			CoverageDelta: coverage.Delta{Size: 4, Indices: []int{0}, Values: []uint8{1}},
		}},
	}

	admitted := s.feedCorpus([]string{"a"}, suite, results)
	require.Equal(t, 0, admitted, "a crashed run must never enter the corpus")
	require.Equal(t, 0, s.resolvers["a"].corpus.Len())
}

func responseResult(t *testing.T, resolverID string, caseUUID uuid.UUID, m *dns.Msg) *harness.Result {
	t.Helper()
	return &harness.Result{
		ResolverID:     resolverID,
		CaseUUID:       caseUUID,
		FailureKind:    harness.FailureNone,
		ClientResponse: dnsutil.FromMsg(m),
	}
}

func TestDiffPairsSkipsIdenticalResponses(t *testing.T) {
	s := newTestScheduler("a", "b")
	c := makeQueryCase(t, "0001.fuzz.")
	suite := &fuzzcase.Suite{Cases: []*fuzzcase.Case{c}}

	reply := new(dns.Msg)
	reply.SetQuestion("0001.fuzz.", dns.TypeA)
	reply.Response = true
	reply.Id = 7

	results := map[string][]*harness.Result{
		"a": {responseResult(t, "a", c.UUID, reply)},
		"b": {responseResult(t, "b", c.UUID, reply)},
	}

	count := s.diffPairs([]string{"a", "b"}, suite, results)
	require.Equal(t, 0, count, "identical client responses must not count as a divergence")
}

func TestDiffPairsDetectsDivergenceAndDedupsByFingerprint(t *testing.T) {
	dir := t.TempDir()
	archiver, err := NewArchiver(dir)
	require.NoError(t, err)

	s := newTestScheduler("a", "b")
	s.archiver = archiver

	c := makeQueryCase(t, "0001.fuzz.")
	suite := &fuzzcase.Suite{Cases: []*fuzzcase.Case{c}}

	replyA := new(dns.Msg)
	replyA.SetQuestion("0001.fuzz.", dns.TypeA)
	replyA.Response = true
	replyA.Id = 7
	replyA.Rcode = dns.RcodeServerFailure

	replyB := new(dns.Msg)
	replyB.SetQuestion("0001.fuzz.", dns.TypeA)
	replyB.Response = true
	replyB.Id = 7
	replyB.Rcode = dns.RcodeSuccess

	results := map[string][]*harness.Result{
		"a": {responseResult(t, "a", c.UUID, replyA)},
		"b": {responseResult(t, "b", c.UUID, replyB)},
	}

	count := s.diffPairs([]string{"a", "b"}, suite, results)
	require.Equal(t, 1, count)

	entries, err := os.ReadDir(filepath.Join(dir, "diffs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	fpDir := filepath.Join(dir, "diffs", entries[0].Name())
	require.FileExists(t, filepath.Join(fpDir, "case.postcard"))
	require.FileExists(t, filepath.Join(fpDir, "report.txt"))

	// Running the identical pair again must not grow the archive: the
	// fingerprint has already been seen (spec §4.6 step 5's dedup rule).
	count = s.diffPairs([]string{"a", "b"}, suite, results)
	require.Equal(t, 1, count, "the divergence itself is still reported")
	entries, err = os.ReadDir(filepath.Join(dir, "diffs"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no new fingerprint directory for an already-seen divergence")
}

func TestDiffPairsSkipsPairsWhereEitherSideCrashed(t *testing.T) {
	s := newTestScheduler("a", "b")
	c := makeQueryCase(t, "0001.fuzz.")
	suite := &fuzzcase.Suite{Cases: []*fuzzcase.Case{c}}

	reply := new(dns.Msg)
	reply.SetQuestion("0001.fuzz.", dns.TypeA)
	reply.Response = true
	reply.Id = 7
	reply.Rcode = dns.RcodeServerFailure

	results := map[string][]*harness.Result{
		"a": {{ResolverID: "a", CaseUUID: c.UUID, FailureKind: harness.FailureResolverCrash}},
		"b": {responseResult(t, "b", c.UUID, reply)},
	}

	count := s.diffPairs([]string{"a", "b"}, suite, results)
	require.Equal(t, 0, count, "a crashed resolver's result must never be diffed against a healthy one")
}

func TestArchiverArchiveCrashWritesCaseAndReport(t *testing.T) {
	dir := t.TempDir()
	archiver, err := NewArchiver(dir)
	require.NoError(t, err)

	c := makeQueryCase(t, "0003.fuzz.")
	res := &harness.Result{ResolverID: "a", CaseUUID: c.UUID, FailureKind: harness.FailureResolverCrash, FinalState: "AWAITING_RESOLVER_QUERIES"}

	require.NoError(t, archiver.ArchiveCrash("a", c, res))

	caseDir := filepath.Join(dir, "crashes", "a", c.UUID.String())
	raw, err := os.ReadFile(filepath.Join(caseDir, "case.postcard"))
	require.NoError(t, err)
	decoded, err := fuzzcase.Decode(raw)
	require.NoError(t, err)
	require.Len(t, decoded.Cases, 1)
	require.Equal(t, c.UUID, decoded.Cases[0].UUID)

	report, err := os.ReadFile(filepath.Join(caseDir, "report.txt"))
	require.NoError(t, err)
	require.Contains(t, string(report), "resolver_crash")
}

func TestHasDivergenceIgnoresBookkeepingEntryAlone(t *testing.T) {
	items := []differ.DiffItem{{Category: differ.CategoryResolverName}}
	require.False(t, differ.HasDivergence(items))

	items = append(items, differ.DiffItem{Category: differ.CategoryStructuralDifference})
	require.True(t, differ.HasDivergence(items))
}

func TestArchiverArchiveWritesCaseAndReport(t *testing.T) {
	dir := t.TempDir()
	archiver, err := NewArchiver(dir)
	require.NoError(t, err)

	c := makeQueryCase(t, "0002.fuzz.")
	items := []differ.DiffItem{
		{Category: differ.CategoryResolverName, Path: ".resolver_pair", ValueA: "a", ValueB: "b"},
		{Category: differ.CategoryStructuralDifference, Path: ".fuzz_result.fuzzee_response", ValueA: "x", ValueB: "y"},
	}

	require.NoError(t, archiver.Archive("deadbeef", c, items))

	caseDir := filepath.Join(dir, "diffs", "deadbeef")
	raw, err := os.ReadFile(filepath.Join(caseDir, "case.postcard"))
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	decoded, err := fuzzcase.Decode(raw)
	require.NoError(t, err)
	require.Len(t, decoded.Cases, 1)
	require.Equal(t, c.UUID, decoded.Cases[0].UUID)

	report, err := os.ReadFile(filepath.Join(caseDir, "report.txt"))
	require.NoError(t, err)
	require.Contains(t, string(report), c.UUID.String())
	require.Contains(t, string(report), "StructuralDifference")
}

func TestEnabledIDsExcludesDisabled(t *testing.T) {
	s := newTestScheduler("a", "b", "c")
	s.resolvers["b"].disabled = true

	ids := s.enabledIDs()
	require.ElementsMatch(t, []string{"a", "c"}, ids)
}

func TestRunRoundErrorsWhenNoResolversEnabled(t *testing.T) {
	s := newTestScheduler("a")
	s.resolvers["a"].disabled = true

	_, err := s.RunRound(context.Background())
	require.ErrorIs(t, err, ErrNoResolvers)
}
